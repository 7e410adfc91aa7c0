package devicesync

import (
	"context"
	"errors"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// ErrNotFound indicates a requested mutation record is missing.
var ErrNotFound = errors.New("mutation not found")

// Store is the on-device durable record of locally-originated mutations. Put
// must hit durable storage before returning so a crash between the user
// action and the next sync cannot drop data.
type Store interface {
	Put(ctx context.Context, m model.Mutation) error
	Update(ctx context.Context, m model.Mutation) error
	Delete(ctx context.Context, id string) error

	// List returns all records oldest-first by creation order.
	List(ctx context.Context) ([]model.Mutation, error)
}
