package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-disaster-news/internal/models"
)

type Filter struct {
	Limit  int
	Offset int
	Since  *time.Time
	Status *models.RunStatus
}

// RunRepository stores monitor probe results. Reports themselves are never
// persisted.
type RunRepository interface {
	AddRun(ctx context.Context, r *models.RetrievalRun) error
	GetRun(ctx context.Context, id string) (*models.RetrievalRun, error)
	ListRuns(ctx context.Context, opts Filter) ([]models.RetrievalRun, error)
}
