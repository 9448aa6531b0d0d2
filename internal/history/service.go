package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract. It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, rec Record) error
}

var ErrInvalidRecord = errors.New("history: invalid record")

// Service validates and stamps records before appending them.
// Callers treat recording as best-effort; a failure never blocks retirement.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, rec Record) error {
	if s == nil || s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if rec.CallID == "" {
		return ErrInvalidRecord
	}

	now := s.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = now
	}
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = rec.EndedAt
	}
	if rec.EndedState == "" {
		rec.EndedState = "ended"
	}
	return s.repo.Append(ctx, rec)
}
