package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notionsync/notionsync/internal/retry"
)

type flakyStore struct {
	Store
	upsertCalls int
	upsertErrs  []error
	getCalls    int
}

func (f *flakyStore) UpsertTask(_ context.Context, _ *UpsertInput) (*UpsertResult, error) {
	f.upsertCalls++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		return nil, err
	}
	return &UpsertResult{TaskID: "task-1", Created: true}, nil
}

func (f *flakyStore) GetCursor(_ context.Context, _ string) (*Cursor, error) {
	f.getCalls++
	return nil, ErrNotFound
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetrying_RetriesTransient(t *testing.T) {
	busy := errors.New("busy")
	inner := &flakyStore{upsertErrs: []error{busy, busy}}
	s := WithRetry(inner, retry.Policy{
		MaxAttempts: 3,
		IsRetryable: func(err error) bool { return errors.Is(err, busy) },
		Sleep:       noSleep,
	}, nil)

	res, err := s.UpsertTask(context.Background(), &UpsertInput{})
	if err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	if res.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want task-1", res.TaskID)
	}
	if inner.upsertCalls != 3 {
		t.Errorf("calls = %d, want 3", inner.upsertCalls)
	}
}

func TestRetrying_DoesNotRetryNotFound(t *testing.T) {
	inner := &flakyStore{}
	s := WithRetry(inner, retry.Policy{MaxAttempts: 5, Sleep: noSleep}, retry.NewPacer(0))

	_, err := s.GetCursor(context.Background(), "notion")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if inner.getCalls != 1 {
		t.Errorf("calls = %d, want 1", inner.getCalls)
	}
}

func TestRetrying_CategoryNotFoundIsFinal(t *testing.T) {
	inner := &flakyStore{upsertErrs: []error{ErrCategoryNotFound}}
	s := WithRetry(inner, retry.Policy{MaxAttempts: 5, Sleep: noSleep}, nil)

	_, err := s.UpsertTask(context.Background(), &UpsertInput{})
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("err = %v, want ErrCategoryNotFound", err)
	}
	if inner.upsertCalls != 1 {
		t.Errorf("calls = %d, want 1", inner.upsertCalls)
	}
}
