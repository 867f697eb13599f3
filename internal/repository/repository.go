// Package repository declares the storage contracts the service layer depends on.
// Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/pipeline"
	"github.com/sakif/user-directory/internal/query"
)

// UserRepository stores the user collection.
//
// Lookups by id return an error wrapping apperror.ErrNotFound when the id does
// not resolve to a live record. Writes that collide with the unique email
// index return an error wrapping apperror.ErrConflict. Anything else is a
// store fault.
type UserRepository interface {
	// Create inserts user and fills in its ID and timestamps.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// List returns one window of the collection plus the size of the whole
	// collection.
	List(ctx context.Context, w query.Window) ([]model.User, int, error)
	// Update applies the touched fields of patch and returns the stored record.
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id string) error
	// Aggregate runs stages in order over the full collection and returns the
	// last stage's rows.
	Aggregate(ctx context.Context, stages []pipeline.Stage) ([]pipeline.Document, error)
}
