// Package tenant resolves source-specific identifiers to configured tenants.
// Lookups are exact binding matches against a cache refreshed on a fixed
// interval and on explicit invalidation after admin edits.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"leadsync/internal/domain"
	"leadsync/internal/models"

	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

// ErrTenantNotFound is terminal: events without a tenant are recorded for
// audit but never queued.
var ErrTenantNotFound = errors.New("tenant not found")

type bindingKey struct {
	source string
	value  string
}

type Resolver struct {
	store    domain.TenantSource
	filePath string
	refresh  time.Duration
	logger   zerolog.Logger

	mu        sync.RWMutex
	byBinding map[bindingKey]*models.Tenant
	byID      map[int64]*models.Tenant
	loadedAt  time.Time
}

func NewResolver(store domain.TenantSource, filePath string, refresh time.Duration, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		filePath:  filePath,
		refresh:   refresh,
		logger:    logger.With().Str("component", "tenant-resolver").Logger(),
		byBinding: make(map[bindingKey]*models.Tenant),
		byID:      make(map[int64]*models.Tenant),
	}
}

// Resolve maps (sourceTag, bindingValue) to a tenant by exact match.
func (r *Resolver) Resolve(ctx context.Context, source, binding string) (*models.Tenant, error) {
	if binding == "" {
		return nil, ErrTenantNotFound
	}
	r.ensureFresh(ctx)

	r.mu.RLock()
	t, ok := r.byBinding[bindingKey{source, binding}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source=%s binding=%s", ErrTenantNotFound, source, binding)
	}
	return t, nil
}

// ByID returns a tenant by its id, used when re-processing stored jobs. The
// cache only indexes active tenants, so a miss falls through to the store: a
// job queued just before its tenant was edited or deactivated still resolves.
func (r *Resolver) ByID(ctx context.Context, id int64) (*models.Tenant, error) {
	r.ensureFresh(ctx)

	r.mu.RLock()
	t, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := r.store.GetTenantByID(ctx, id)
	if err != nil || t == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrTenantNotFound, id)
	}
	return t, nil
}

// Invalidate forces a reload on the next lookup. Called after admin edits.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.loadedAt = time.Time{}
	r.mu.Unlock()
}

// Start refreshes the cache in the background until ctx is done.
func (r *Resolver) Start(ctx context.Context) {
	if err := r.Reload(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial tenant load failed")
	}

	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.Error().Err(err).Msg("tenant refresh failed")
			}
		}
	}
}

func (r *Resolver) ensureFresh(ctx context.Context) {
	r.mu.RLock()
	stale := time.Since(r.loadedAt) > r.refresh
	r.mu.RUnlock()
	if stale {
		if err := r.Reload(ctx); err != nil {
			r.logger.Error().Err(err).Msg("tenant reload failed, serving stale cache")
		}
	}
}

// Reload rebuilds the binding index from the store, falling back to the
// tenants file when the store is unavailable or empty.
func (r *Resolver) Reload(ctx context.Context) error {
	tenants, err := r.store.ListActiveTenants(ctx)
	if err != nil || len(tenants) == 0 {
		fileTenants, fileErr := r.loadFile()
		if fileErr != nil {
			if err != nil {
				return fmt.Errorf("store: %w (file fallback: %v)", err, fileErr)
			}
			return nil // empty store, no file: nothing to index
		}
		if err != nil {
			r.logger.Warn().Err(err).Msg("tenant store unavailable, using file fallback")
		}
		tenants = fileTenants
	}

	byBinding := make(map[bindingKey]*models.Tenant)
	byID := make(map[int64]*models.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
		if v := t.Bindings.InstanceID; v != "" {
			byBinding[bindingKey{models.SourceChat, v}] = t
		}
		if v := t.Bindings.AccountID; v != "" {
			byBinding[bindingKey{models.SourceChat, v}] = t
			byBinding[bindingKey{models.SourcePipeline, v}] = t
		}
		if v := t.Bindings.PipelineID; v != "" {
			byBinding[bindingKey{models.SourcePipeline, v}] = t
		}
	}

	r.mu.Lock()
	r.byBinding = byBinding
	r.byID = byID
	r.loadedAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug().Int("tenants", len(byID)).Msg("tenant cache reloaded")
	return nil
}

func (r *Resolver) loadFile() ([]*models.Tenant, error) {
	if r.filePath == "" {
		return nil, errors.New("no tenants file configured")
	}
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tenants []*models.Tenant `yaml:"tenants"`
	}
	if err := yamlv2.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	return parsed.Tenants, nil
}
