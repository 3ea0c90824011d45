package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngest_Pipeline_ResolveRepository(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"notificaciones", "df-notificaciones"},
		{"avisos-de-mantenimiento", "df-avisos-mantenimiento"},
		{"programa-de-fabricacion", "df-programa-fabricacion"},
		{"  Ventas  ", "df-ventas"},
		{"", ""},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, ResolveRepository(tc.in))
	}
}

func TestIngest_Pipeline_Client_RunAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("compile then invoke", func(t *testing.T) {
		t.Parallel()

		var gotPaths []string
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPaths = append(gotPaths, r.URL.Path)
			gotAuth = r.Header.Get("Authorization")
			switch r.URL.Path {
			case "/repositories/df-ventas/workspaces/development/compile":
				w.Write([]byte(`{"compilation_id": "comp-123"}`))
			case "/compilations/comp-123/invoke":
				w.Write([]byte(`{"invocation_id": "inv-456", "state": "RUNNING"}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		client, err := NewClient(&ClientConfig{BaseURL: srv.URL, Token: "secret"})
		require.NoError(t, err)

		inv, err := RunAll(ctx, client, "df-ventas", "")
		require.NoError(t, err)
		require.Equal(t, Invocation{ID: "inv-456", State: "RUNNING"}, inv)
		require.Equal(t, []string{
			"/repositories/df-ventas/workspaces/development/compile",
			"/compilations/comp-123/invoke",
		}, gotPaths)
		require.Equal(t, "Bearer secret", gotAuth)
	})

	t.Run("compile failure stops the run", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "repository not found", http.StatusNotFound)
		}))
		defer srv.Close()

		client, err := NewClient(&ClientConfig{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = RunAll(ctx, client, "df-missing", "development")
		require.Error(t, err)
		require.Contains(t, err.Error(), "404")
	})

	t.Run("empty compilation id is an error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client, err := NewClient(&ClientConfig{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = client.Compile(ctx, "df-ventas", "development")
		require.Error(t, err)
	})

	t.Run("config requires base url", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(&ClientConfig{})
		require.Error(t, err)
	})
}
