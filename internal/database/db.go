package database

import (
	"errors"
	"fmt"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// MapStoreError translates pgx errors into the sentinel taxonomy.
// Missing rows become ErrNotFound; anything else is a persistence
// failure so callers can apply their fail-open/fail-closed policy.
func MapStoreError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	return fmt.Errorf("%w: %v", models.ErrPersistence, err)
}
