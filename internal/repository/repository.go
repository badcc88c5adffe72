package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

var ErrNotFound = errors.New("run not found")

type Filter struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Outcome *models.RunOutcome
}

// RunRepository is the dispatch run journal.
type RunRepository interface {
	Add(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, opts Filter) ([]models.Run, error)
}
