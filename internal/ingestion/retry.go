package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/project-tally/internal/api/v1"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a batch whose transaction lost a
// serialization race is run again.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the config defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	), uint64(p.MaxRetries))
	return backoff.WithContext(b, ctx)
}

// ApplyBatch runs the batch in one transaction. Serialization failures roll
// the whole transaction back and run it again; every other error is final.
func (s *Service) ApplyBatch(ctx context.Context, batch v1.ChangeBatch) error {
	attempt := 0
	operation := func() error {
		if attempt > 0 {
			s.metrics.ObserveRetry(batch.Table)
		}
		attempt++

		err := s.runner.RunInTx(ctx, func(ctx context.Context, store storage.AggregateStore) error {
			return s.dispatcher.Apply(ctx, store, batch)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrSerialization) {
			slog.Warn("[Ingestion] Transaction lost a serialization race, retrying",
				"batch_id", batch.ID,
				"table", batch.Table,
				"attempt", attempt,
				"error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, s.retry.backOff(ctx)); err != nil {
		if attempt > 1 && errors.Is(err, storage.ErrSerialization) {
			return fmt.Errorf("apply batch %s: gave up after %d attempts: %w", batch.ID, attempt, err)
		}
		return fmt.Errorf("apply batch %s: %w", batch.ID, err)
	}
	return nil
}
