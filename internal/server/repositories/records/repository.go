// Package records declares the storage contract for entities described by
// fieldmap: rows of plaintext reference columns and ciphertext columns.
package records

import (
	"context"

	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

// Repository stores records of any registered entity.
type Repository interface {
	// Create inserts rec and returns its new id. The stored version is 1.
	Create(ctx context.Context, e *fieldmap.Entity, rec *models.Record) (int64, error)

	// GetByID returns the row or common.ErrorNotFound. It does not look at
	// soft-delete flags, which are ciphertext.
	GetByID(ctx context.Context, e *fieldmap.Entity, id int64) (*models.Record, error)

	// ListAll returns every row ordered by id.
	ListAll(ctx context.Context, e *fieldmap.Entity) ([]*models.Record, error)

	// ListByParent returns the rows whose parent column equals parentID.
	ListByParent(ctx context.Context, e *fieldmap.Entity, parentID int64) ([]*models.Record, error)

	// Update writes columns when the stored version equals version and bumps
	// the version. A stale version yields common.ErrVersionConflict.
	Update(ctx context.Context, e *fieldmap.Entity, id, version int64, columns map[string]*string) error

	// DeleteRow removes the row physically.
	DeleteRow(ctx context.Context, e *fieldmap.Entity, id int64) error
}
