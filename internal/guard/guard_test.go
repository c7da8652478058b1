package guard

import (
	"context"
	"testing"
	"time"

	"leadsync/internal/config"
	"leadsync/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newGuard(cfg config.GuardConfig) *Guard {
	logger := zerolog.Nop()
	return New(repository.NewMemoryGuardRepository(), cfg, &logger)
}

func TestAllowEventSuppressesDuplicates(t *testing.T) {
	g := newGuard(config.GuardConfig{DedupWindow: time.Minute})
	ctx := context.Background()

	assert.True(t, g.AllowEvent(ctx, 1, "5511992083378", "create"))
	assert.False(t, g.AllowEvent(ctx, 1, "5511992083378", "create"))
	// The window is keyed on the 9-digit tail, so a reformatted number from
	// the other source still counts as a duplicate.
	assert.False(t, g.AllowEvent(ctx, 1, "(11)99208-3378", "create"))
	// A different kind for the same phone is a different window.
	assert.True(t, g.AllowEvent(ctx, 1, "5511992083378", "update"))
	// As is another tenant.
	assert.True(t, g.AllowEvent(ctx, 2, "5511992083378", "create"))
}

func TestAllowEventWindowExpiry(t *testing.T) {
	g := newGuard(config.GuardConfig{DedupWindow: 20 * time.Millisecond})
	ctx := context.Background()

	assert.True(t, g.AllowEvent(ctx, 1, "551199", "create"))
	time.Sleep(30 * time.Millisecond)
	assert.True(t, g.AllowEvent(ctx, 1, "551199", "create"))
}

func TestAllowEventEmptyPhonePasses(t *testing.T) {
	g := newGuard(config.GuardConfig{DedupWindow: time.Minute})
	assert.True(t, g.AllowEvent(context.Background(), 1, "", "create"))
}

func TestAllowIPCap(t *testing.T) {
	g := newGuard(config.GuardConfig{IPWindow: time.Minute, IPLimit: 2})
	ctx := context.Background()

	assert.True(t, g.AllowIP(ctx, "10.0.0.1"))
	assert.True(t, g.AllowIP(ctx, "10.0.0.1"))
	assert.False(t, g.AllowIP(ctx, "10.0.0.1"))
	// Another IP gets its own window.
	assert.True(t, g.AllowIP(ctx, "10.0.0.2"))
}
