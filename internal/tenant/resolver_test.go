package tenant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leadsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tenants  []*models.Tenant
	inactive []*models.Tenant
	err      error
	calls    int
}

func (s *fakeStore) ListActiveTenants(ctx context.Context) ([]*models.Tenant, error) {
	s.calls++
	return s.tenants, s.err
}

func (s *fakeStore) GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	for _, t := range append(s.tenants, s.inactive...) {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errors.New("no such tenant")
}

func newResolver(store *fakeStore, filePath string) *Resolver {
	logger := zerolog.Nop()
	return NewResolver(store, filePath, time.Minute, &logger)
}

func TestResolveByBinding(t *testing.T) {
	store := &fakeStore{tenants: []*models.Tenant{
		{ID: 1, Name: "A", Bindings: models.SourceBindings{InstanceID: "inst-1"}},
		{ID: 2, Name: "B", Bindings: models.SourceBindings{PipelineID: "777", AccountID: "acc-2"}},
	}}
	r := newResolver(store, "")
	ctx := context.Background()

	got, err := r.Resolve(ctx, models.SourceChat, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	got, err = r.Resolve(ctx, models.SourcePipeline, "777")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)

	// Account id matches from either source.
	got, err = r.Resolve(ctx, models.SourcePipeline, "acc-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
}

func TestResolveNotFoundIsExact(t *testing.T) {
	store := &fakeStore{tenants: []*models.Tenant{
		{ID: 1, Bindings: models.SourceBindings{InstanceID: "inst-1"}},
	}}
	r := newResolver(store, "")
	ctx := context.Background()

	// No fuzzy matching: a prefix or different source does not resolve.
	_, err := r.Resolve(ctx, models.SourceChat, "inst")
	require.ErrorIs(t, err, ErrTenantNotFound)
	_, err = r.Resolve(ctx, models.SourcePipeline, "inst-1")
	require.ErrorIs(t, err, ErrTenantNotFound)
	_, err = r.Resolve(ctx, models.SourceChat, "")
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestInvalidateForcesReload(t *testing.T) {
	store := &fakeStore{tenants: []*models.Tenant{
		{ID: 1, Bindings: models.SourceBindings{InstanceID: "inst-1"}},
	}}
	r := newResolver(store, "")
	ctx := context.Background()

	_, err := r.Resolve(ctx, models.SourceChat, "inst-1")
	require.NoError(t, err)
	before := store.calls

	store.tenants = append(store.tenants, &models.Tenant{
		ID: 2, Bindings: models.SourceBindings{InstanceID: "inst-2"},
	})

	// Fresh cache: new tenant is not visible yet.
	_, err = r.Resolve(ctx, models.SourceChat, "inst-2")
	require.ErrorIs(t, err, ErrTenantNotFound)

	r.Invalidate()
	got, err := r.Resolve(ctx, models.SourceChat, "inst-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Greater(t, store.calls, before)
}

func TestFileFallbackWhenStoreFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - id: 9
    name: "From File"
    bindings:
      instance_id: "inst-file"
    spreadsheet_id: "sheet-1"
    sheet_mode: "auto_monthly"
`), 0o644))

	store := &fakeStore{err: errors.New("db down")}
	r := newResolver(store, path)

	got, err := r.Resolve(context.Background(), models.SourceChat, "inst-file")
	require.NoError(t, err)
	assert.Equal(t, "From File", got.Name)
	assert.Equal(t, "sheet-1", got.SpreadsheetID)
}

func TestByID(t *testing.T) {
	store := &fakeStore{tenants: []*models.Tenant{{ID: 5, Name: "T"}}}
	r := newResolver(store, "")

	got, err := r.ByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Name)

	_, err = r.ByID(context.Background(), 6)
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestByIDFallsThroughToStoreForInactiveTenant(t *testing.T) {
	store := &fakeStore{
		tenants:  []*models.Tenant{{ID: 5, Name: "Ativa"}},
		inactive: []*models.Tenant{{ID: 8, Name: "Desativada"}},
	}
	r := newResolver(store, "")

	// Not in the active cache, still loadable for a job queued earlier.
	got, err := r.ByID(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, "Desativada", got.Name)
}
