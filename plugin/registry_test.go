package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/plugin"
)

type recorder struct {
	name string
	mu   sync.Mutex
	hits []string
	fail bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) hit(h string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, h)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnValueRolledUp(_ context.Context, _ id.ResourceID, _ decimal.Decimal, _ int) error {
	return r.hit("rolled_up")
}

func (r *recorder) OnClaimCreated(_ context.Context, _ *claim.Claim) error {
	return r.hit("claim_created")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnClaimCreated(ctx context.Context, _ *claim.Claim) error {
	<-ctx.Done()
	return ctx.Err()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet())
	require.NoError(t, r.Register(&recorder{name: "audit"}))
	assert.Error(t, r.Register(&recorder{name: "audit"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("audit"))
	assert.Nil(t, r.Get("missing"))
}

func TestEmitReachesImplementers(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet())
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))

	ctx := context.Background()
	r.EmitValueRolledUp(ctx, id.NewResourceID(), decimal.NewFromInt(3), 0)
	r.EmitClaimCreated(ctx, &claim.Claim{})
	r.EmitDistributionCreated(ctx, nil)

	assert.Equal(t, []string{"rolled_up", "claim_created"}, rec.hits)
}

func TestFailingHookDoesNotStopOthers(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet())
	bad := &recorder{name: "bad", fail: true}
	good := &recorder{name: "good"}
	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))

	r.EmitClaimCreated(context.Background(), &claim.Claim{})
	assert.Len(t, bad.hits, 1)
	assert.Len(t, good.hits, 1)
}

func TestHookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet()).WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))
	rec := &recorder{name: "after"}
	require.NoError(t, r.Register(rec))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	r.EmitClaimCreated(ctx, &claim.Claim{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, rec.hits, 1)
}
