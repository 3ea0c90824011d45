package objstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIngest_ObjStore_PartitionPath(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 7, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		path string
		file string
		want string
	}{
		{"plain", "sap/stxh", "data.parquet", "sap/stxh/year=2025/month=03/day=07/data.parquet"},
		{"trailing slash trimmed", "pd/ventas/", "data.parquet", "pd/ventas/year=2025/month=03/day=07/data.parquet"},
		{"single segment", "manual", "data.parquet", "manual/year=2025/month=03/day=07/data.parquet"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, PartitionPath(tc.path, day, tc.file))
		})
	}
}

func TestIngest_ObjStore_LatestObject(t *testing.T) {
	t.Parallel()

	t.Run("picks newest by creation time", func(t *testing.T) {
		t.Parallel()
		objects := []ObjectInfo{
			{Name: "a/old.parquet", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "a/new.parquet", CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "a/mid.parquet", CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		}
		latest, ok := LatestObject(objects)
		require.True(t, ok)
		require.Equal(t, "a/new.parquet", latest.Name)
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		_, ok := LatestObject(nil)
		require.False(t, ok)
	})
}
