package store

import (
	"context"

	"github.com/starford/council/internal/models"
)

// Store is the meeting data store consumed by the calendar view and the poller.
type Store interface {
	List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error)
	Get(ctx context.Context, id string) (*models.Meeting, error)
	// Insert validates and stores m, returning the new id.
	Insert(ctx context.Context, m *models.Meeting) (string, error)
	Update(ctx context.Context, id string, p models.MeetingPatch) error
	// Delete is irreversible; callers confirm with the user first.
	Delete(ctx context.Context, id string) error
	// RequestDocumentGeneration is fire-and-forget; completion is observed via Get.
	RequestDocumentGeneration(ctx context.Context, id string) error
}

// Repository is the persistence layer behind a Store.
// Consumers that only need storage depend on this rather than on *DB.
type Repository interface {
	List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error)
	Get(ctx context.Context, id string) (*models.Meeting, error)
	Insert(ctx context.Context, m *models.Meeting) (string, error)
	Update(ctx context.Context, id string, p models.MeetingPatch) error
	Delete(ctx context.Context, id string) error
	SetDocument(ctx context.Context, id, url, checksum string) error
	ClearDocument(ctx context.Context, id string) error
	Committees(ctx context.Context) ([]models.Committee, error)
	EnsureCommittees(ctx context.Context, names []string) error
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
