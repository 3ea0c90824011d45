package server

import (
	"fmt"

	"github.com/sdplabs/ingest/internal/objstore"
	"github.com/sdplabs/ingest/internal/warehouse"
)

// ClientSet holds the per-project storage and warehouse clients, built once
// at startup and passed into handlers explicitly. Lookups after construction
// are read-only, so the set is safe for concurrent use.
type ClientSet struct {
	stores     map[string]objstore.Store
	warehouses map[string]warehouse.Client
}

func NewClientSet() *ClientSet {
	return &ClientSet{
		stores:     make(map[string]objstore.Store),
		warehouses: make(map[string]warehouse.Client),
	}
}

// RegisterProject binds the clients serving one warehouse project.
func (c *ClientSet) RegisterProject(projectID string, store objstore.Store, wh warehouse.Client) {
	c.stores[projectID] = store
	c.warehouses[projectID] = wh
}

func (c *ClientSet) Store(projectID string) (objstore.Store, error) {
	store, ok := c.stores[projectID]
	if !ok {
		return nil, fmt.Errorf("no object store configured for project %q", projectID)
	}
	return store, nil
}

func (c *ClientSet) Warehouse(projectID string) (warehouse.Client, error) {
	wh, ok := c.warehouses[projectID]
	if !ok {
		return nil, fmt.Errorf("no warehouse client configured for project %q", projectID)
	}
	return wh, nil
}
