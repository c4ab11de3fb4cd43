// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"feedforwarder/internal/model"
)

// ErrStore marks a failure of the persistence layer itself.
var ErrStore = errors.New("store failure")

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
//
// Create and Delete methods report a uniqueness conflict or a missing row as
// false rather than as an error.
type Storage interface {
	UpsertUser(ctx context.Context, telegramID int64) (*model.User, error)
	ListOwners(ctx context.Context) ([]int64, error)

	CreateSource(ctx context.Context, src *model.Source) (bool, error)
	CreateSourceWithFilters(ctx context.Context, src *model.Source, keywords []string) (bool, error)
	GetSource(ctx context.Context, userID int64, url string) (*model.Source, error)
	GetSourceByID(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context, userID int64) ([]model.Source, error)
	DeleteSource(ctx context.Context, id int64) (bool, error)

	CreateTarget(ctx context.Context, t *model.Target) (bool, error)
	ListTargets(ctx context.Context, sourceID int64) ([]model.Target, error)
	DeleteTarget(ctx context.Context, sourceID, chatID int64) (bool, error)

	CreateFilter(ctx context.Context, f *model.Filter) (bool, error)
	ListFilters(ctx context.Context, sourceID int64) ([]model.Filter, error)
	DeleteFilter(ctx context.Context, sourceID int64, keyword string) (bool, error)

	MarkSent(ctx context.Context, sourceID int64, link string) error
	IsSent(ctx context.Context, sourceID int64, link string) (bool, error)

	Stats(ctx context.Context) (*model.Stats, error)

	Close() error
}
