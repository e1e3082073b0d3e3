package store

import (
	"context"

	"github.com/notionsync/notionsync/internal/retry"
)

// Retrying decorates a Store so every remote call is paced and retried
// under one policy. Schema setup and Close pass straight through.
type Retrying struct {
	Store
	policy retry.Policy
	pacer  *retry.Pacer
}

// WithRetry wraps s. A nil pacer does not pace.
func WithRetry(s Store, policy retry.Policy, pacer *retry.Pacer) *Retrying {
	return &Retrying{Store: s, policy: policy, pacer: pacer}
}

func call[T any](ctx context.Context, r *Retrying, fn func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (T, error) {
		if err := r.pacer.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
}

func (r *Retrying) GetCursor(ctx context.Context, source string) (*Cursor, error) {
	return call(ctx, r, func(ctx context.Context) (*Cursor, error) {
		return r.Store.GetCursor(ctx, source)
	})
}

func (r *Retrying) SetCursor(ctx context.Context, c *Cursor) error {
	_, err := call(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Store.SetCursor(ctx, c)
	})
	return err
}

func (r *Retrying) GetLink(ctx context.Context, externalID string) (*SyncLink, error) {
	return call(ctx, r, func(ctx context.Context) (*SyncLink, error) {
		return r.Store.GetLink(ctx, externalID)
	})
}

func (r *Retrying) PutLink(ctx context.Context, l *SyncLink) error {
	_, err := call(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Store.PutLink(ctx, l)
	})
	return err
}

func (r *Retrying) UpsertTask(ctx context.Context, in *UpsertInput) (*UpsertResult, error) {
	return call(ctx, r, func(ctx context.Context) (*UpsertResult, error) {
		return r.Store.UpsertTask(ctx, in)
	})
}

func (r *Retrying) Stats(ctx context.Context) (*Stats, error) {
	return call(ctx, r, func(ctx context.Context) (*Stats, error) {
		return r.Store.Stats(ctx)
	})
}
