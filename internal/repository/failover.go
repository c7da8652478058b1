package repository

import (
	"context"
	"sync/atomic"
	"time"

	"leadsync/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverGuardRepository prefers the primary (redis) repository and falls
// back to the in-memory one when it errors, probing the primary again after a
// cooldown. The guards are advisory, so losing shared state during failover
// is acceptable.
type FailoverGuardRepository struct {
	primary   domain.GuardRepository
	fallback  domain.GuardRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const recoverAfter = time.Minute

func NewFailoverGuardRepository(primary, fallback domain.GuardRepository, logger *zerolog.Logger) *FailoverGuardRepository {
	return &FailoverGuardRepository{primary: primary, fallback: fallback, logger: logger}
}

func (r *FailoverGuardRepository) primaryUsable() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > recoverAfter {
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (r *FailoverGuardRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("guard repository primary failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverGuardRepository) MarkSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	if r.primaryUsable() {
		first, err := r.primary.MarkSeen(ctx, key, window)
		if err == nil {
			r.isDown.Store(false)
			return first, nil
		}
		r.markDown(err)
	}
	return r.fallback.MarkSeen(ctx, key, window)
}

func (r *FailoverGuardRepository) CountHit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.primaryUsable() {
		count, err := r.primary.CountHit(ctx, key, window)
		if err == nil {
			r.isDown.Store(false)
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.CountHit(ctx, key, window)
}
