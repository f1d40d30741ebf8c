package repository

import (
	"context"
	"sync/atomic"
	"time"

	"itinera/internal/domain"
	"itinera/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftRepository serves drafts from primary (redis) and switches to
// fallback (memory) on the first error. The primary is retried once per
// recoveryInterval.
type FailoverDraftRepository struct {
	primary   domain.DraftRepository
	fallback  domain.DraftRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to the primary store.
func (r *FailoverDraftRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return time.Since(last) > recoveryInterval
}

// observe records the outcome of a primary call.
func (r *FailoverDraftRepository) observe(err error) bool {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary draft repository recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary draft repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
	return false
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	if r.usePrimary() {
		draft, err := r.primary.GetDraft(ctx, id)
		if r.observe(err) {
			return draft, nil
		}
	}
	return r.fallback.GetDraft(ctx, id)
}

func (r *FailoverDraftRepository) SaveDraft(ctx context.Context, draft *models.Draft) error {
	if r.usePrimary() {
		if r.observe(r.primary.SaveDraft(ctx, draft)) {
			return nil
		}
	}
	return r.fallback.SaveDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, id string) error {
	if r.usePrimary() {
		if r.observe(r.primary.ClearDraft(ctx, id)) {
			// Черновик мог попасть в память, пока Redis был недоступен
			_ = r.fallback.ClearDraft(ctx, id)
			return nil
		}
	}
	return r.fallback.ClearDraft(ctx, id)
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if r.observe(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
