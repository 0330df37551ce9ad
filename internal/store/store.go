package store

import (
	"context"

	"github.com/joescharf/reviewd/internal/models"
)

// ReviewListFilter specifies filters for listing stored reviews.
type ReviewListFilter struct {
	RepoFullName string
	PRNumber     int
	Verdict      string
	Limit        int
}

// Store defines the persistence interface for reviewd.
type Store interface {
	SaveReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.Review, error)
	DeleteReview(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
