package pipeline

import (
	"context"

	"github.com/SomaOhm/Goal-Tracking-App/internal/warehouse"
)

type warehouseAdapter struct {
	db *warehouse.DB
}

// FromWarehouse exposes a DuckDB warehouse as a Warehouse.
func FromWarehouse(db *warehouse.DB) Warehouse {
	return warehouseAdapter{db: db}
}

func (a warehouseAdapter) Session(ctx context.Context) (Session, error) {
	s, err := a.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
