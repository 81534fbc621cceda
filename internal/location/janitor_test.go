package location

import (
	"context"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)
	require.NoError(t, store.Save(ctx, sharingAt("fresh", reference, now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, sharingAt("stale", reference, now.Add(-6*time.Minute))))

	j := NewJanitor(store, 5*time.Minute, time.Minute, logger.NewNop())
	j.now = func() time.Time { return now }

	pruned, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, store.Indexed())
}

func TestJanitor_StartStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)
	require.NoError(t, store.Save(context.Background(), sharingAt("stale", reference, time.Now().Add(-time.Hour))))

	j := NewJanitor(store, 5*time.Minute, 10*time.Millisecond, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	assert.Eventually(t, func() bool { return store.Indexed() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
