// Package guard implements the advisory pre-filters in front of the queue: a
// sliding dedup window per (tenant, phone tail, kind) and a fixed per-IP
// volume cap. They
// reduce duplicate processing from at-least-once senders but are not the
// system of record for idempotency.
package guard

import (
	"context"
	"fmt"
	"time"

	"leadsync/internal/config"
	"leadsync/internal/domain"
	"leadsync/internal/normalizer"
	"leadsync/internal/repository"

	"github.com/rs/zerolog"
)

type Guard struct {
	repo   domain.GuardRepository
	cfg    config.GuardConfig
	logger zerolog.Logger
}

func New(repo domain.GuardRepository, cfg config.GuardConfig, logger *zerolog.Logger) *Guard {
	return &Guard{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With().Str("component", "guard").Logger(),
	}
}

// AllowEvent reports whether an event for (tenant, phone tail, kind) is the
// first inside the dedup window. Keyed on the tail so the two CRMs' phone
// formats dedup against each other. Guard errors fail open: a broken guard
// must not stop ingestion.
func (g *Guard) AllowEvent(ctx context.Context, tenantID int64, phone, kind string) bool {
	if phone == "" {
		return true
	}
	key := fmt.Sprintf("dedup:%d:%s:%s", tenantID, normalizer.PhoneTail(phone), kind)
	first, err := g.repo.MarkSeen(ctx, key, g.cfg.DedupWindow)
	if err != nil {
		g.logger.Warn().Err(err).Msg("dedup check failed, allowing event")
		return true
	}
	return first
}

// AllowIP reports whether the source IP is under its volume cap for the
// current window.
func (g *Guard) AllowIP(ctx context.Context, ip string) bool {
	if ip == "" {
		return true
	}
	count, err := g.repo.CountHit(ctx, "ip:"+ip, g.cfg.IPWindow)
	if err != nil {
		g.logger.Warn().Err(err).Msg("ip throttle check failed, allowing request")
		return true
	}
	return count <= int64(g.cfg.IPLimit)
}

// StartSweeper periodically drops expired in-memory window entries. Only the
// memory repository accumulates garbage; redis expires keys itself.
func (g *Guard) StartSweeper(ctx context.Context, mem *repository.MemoryGuardRepository) {
	interval := g.cfg.IPWindow
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem.Sweep()
		}
	}
}
