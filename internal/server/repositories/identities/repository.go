// Package identities is the credential store: persistence for Identity rows
// in PostgreSQL.
package identities

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository looks up and persists identities. Lookups of a missing row
// return an error matching common.ErrorNotFound.
type Repository interface {
	GetByUserName(ctx context.Context, userName string) (*models.Identity, error)
	GetByID(ctx context.Context, id int64) (*models.Identity, error)

	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Identity, error)

	ExistsByUserName(ctx context.Context, userName string) (bool, error)

	// Upsert inserts identity when its ID is zero and updates it otherwise.
	// applied reports whether a row was written.
	Upsert(ctx context.Context, identity *models.Identity) (applied bool, err error)
}
