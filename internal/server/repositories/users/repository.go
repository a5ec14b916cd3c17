// Package users stores operator accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByBadge(ctx context.Context, badgeNum string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
