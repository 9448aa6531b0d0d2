package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_StampsMissingFields(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)
	now := time.Unix(1700000000, 0).UTC()
	s.clock = func() time.Time { return now }

	err := s.Append(context.Background(), Record{CallID: "C1", From: "+1555", To: "+1777"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	recs := repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	got := recs[0]
	if got.ID == "" {
		t.Fatal("expected generated record id")
	}
	if !got.EndedAt.Equal(now) {
		t.Fatalf("EndedAt = %v, want %v", got.EndedAt, now)
	}
	if !got.FirstSeenAt.Equal(now) {
		t.Fatalf("FirstSeenAt should default to EndedAt, got %v", got.FirstSeenAt)
	}
	if got.EndedState != "ended" {
		t.Fatalf("EndedState = %q, want ended", got.EndedState)
	}
}

func TestAppend_PreservesProvidedFields(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)

	first := time.Unix(1700000000, 0).UTC()
	ended := first.Add(90 * time.Second)
	rec := Record{
		ID:          "fixed-id",
		CallID:      "C1",
		Source:      "realtime",
		EndedState:  "busy",
		FirstSeenAt: first,
		EndedAt:     ended,
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	got := repo.Records()[0]
	if got.ID != "fixed-id" || got.EndedState != "busy" {
		t.Fatalf("provided fields overwritten: %+v", got)
	}
	if !got.FirstSeenAt.Equal(first) || !got.EndedAt.Equal(ended) {
		t.Fatalf("provided timestamps overwritten: %+v", got)
	}
}

func TestAppend_RejectsMissingCallID(t *testing.T) {
	s := NewService(NewMemoryRepo())
	if err := s.Append(context.Background(), Record{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestAppend_NilService(t *testing.T) {
	var s *Service
	if err := s.Append(context.Background(), Record{CallID: "C1"}); err == nil {
		t.Fatal("expected error from nil service")
	}
}
