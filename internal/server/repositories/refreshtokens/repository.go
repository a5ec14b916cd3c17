package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

// Repository keeps single-use refresh tokens.
type Repository interface {
	Issue(ctx context.Context, t *models.RefreshToken) error

	// Consume removes the token and returns it. Unknown or already
	// consumed tokens yield common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// RevokeAll drops every token of the user and reports how many there were.
	RevokeAll(ctx context.Context, userID int64) (int64, error)
}
