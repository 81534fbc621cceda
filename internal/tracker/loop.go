package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type State int32

const (
	StateStopped State = iota
	StatePermissionPending
	StateTracking
)

func (s State) String() string {
	switch s {
	case StatePermissionPending:
		return "PERMISSION_PENDING"
	case StateTracking:
		return "TRACKING"
	default:
		return "STOPPED"
	}
}

var (
	ErrPermissionDenied         = errors.New("location permission denied")
	ErrLocationServicesDisabled = errors.New("location services disabled")
)

// Fix is one position sample.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Latitude, Lng: f.Longitude}
}

// Locator is the device position source.
type Locator interface {
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition may return a cached sample no older than maxAge.
	// ErrLocationServicesDisabled stops the loop.
	CurrentPosition(ctx context.Context, maxAge time.Duration) (Fix, error)
	Release()
}

// Persister stores a sample on the server.
type Persister interface {
	UpdateLocation(ctx context.Context, fix Fix) error
}

// Publisher pushes a sample over the realtime channel.
type Publisher interface {
	PublishLocation(ctx context.Context, fix Fix) error
}

type Options struct {
	Interval       time.Duration
	AcquireTimeout time.Duration
	MaxCachedAge   time.Duration
	InitialTimeout time.Duration
	// MinMoveMeters skips publishing samples closer than this to the last
	// published one, unless Heartbeat has elapsed. 0 publishes every sample.
	MinMoveMeters float64
	Heartbeat     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Interval:       2 * time.Second,
		AcquireTimeout: 3 * time.Second,
		MaxCachedAge:   2 * time.Second,
		InitialTimeout: 15 * time.Second,
		Heartbeat:      30 * time.Second,
	}
}

// Loop samples the locator on a fixed interval and publishes each sample
// while sharing is on. The cancel handle is the only record of an active cycle.
type Loop struct {
	locator   Locator
	persister Persister
	publisher Publisher
	logger    logger.Logger
	opts      Options
	onFix     func(Fix)
	now       func() time.Time

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	done            chan struct{}
	lastFix         *Fix
	lastPublished   *Fix
	lastPublishedAt time.Time

	sharing atomic.Bool
}

func NewLoop(locator Locator, persister Persister, publisher Publisher, log logger.Logger, opts Options) *Loop {
	l := &Loop{
		locator:   locator,
		persister: persister,
		publisher: publisher,
		logger:    log,
		opts:      opts,
		now:       time.Now,
	}
	l.sharing.Store(true)
	return l
}

// OnFix registers a callback for every successful sample, shared or not.
func (l *Loop) OnFix(fn func(Fix)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFix = fn
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) SetSharing(on bool) { l.sharing.Store(on) }
func (l *Loop) Sharing() bool      { return l.sharing.Load() }

func (l *Loop) LastFix() (Fix, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastFix == nil {
		return Fix{}, false
	}
	return *l.lastFix, true
}

// Start asks for permission and begins sampling. It is a no-op while a
// cycle is active or a permission request is pending. A denial leaves the
// loop stopped and returns ErrPermissionDenied.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil || l.state == StatePermissionPending {
		l.mu.Unlock()
		return nil
	}
	l.state = StatePermissionPending
	l.mu.Unlock()

	granted, err := l.locator.RequestPermission(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil || !granted {
		l.state = StateStopped
		if err != nil {
			return errors.Wrap(ErrPermissionDenied, err.Error())
		}
		return ErrPermissionDenied
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = StateTracking
	go l.run(runCtx, l.done)
	return nil
}

// Stop cancels the active cycle, waits for it to exit and releases the locator.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
	l.locator.Release()
}

// CurrentFix is a one-shot sample for initial display.
func (l *Loop) CurrentFix(ctx context.Context) (Fix, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.InitialTimeout)
	defer cancel()

	fix, err := l.locator.CurrentPosition(ctx, l.opts.MaxCachedAge)
	if err != nil {
		return Fix{}, err
	}
	l.record(fix)
	return fix, nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if disabled := l.tick(ctx); disabled {
				l.halt(done)
				return
			}
		}
	}
}

// tick takes one sample. It reports true when location services are off.
func (l *Loop) tick(ctx context.Context) bool {
	sampleCtx, cancel := context.WithTimeout(ctx, l.opts.AcquireTimeout)
	fix, err := l.locator.CurrentPosition(sampleCtx, l.opts.MaxCachedAge)
	cancel()

	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		if errors.Is(err, ErrLocationServicesDisabled) {
			l.logger.Warn("Location services disabled, stopping tracker")
			return true
		}
		l.logger.Warn("Skipping location sample", "error", err)
		return false
	}

	l.record(fix)
	if !l.sharing.Load() || !l.shouldPublish(fix) {
		return false
	}

	// Persist and publish independently; neither failure blocks the other.
	var g errgroup.Group
	g.Go(func() error {
		if err := l.persister.UpdateLocation(ctx, fix); err != nil {
			l.logger.Warn("Failed to persist location", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := l.publisher.PublishLocation(ctx, fix); err != nil {
			l.logger.Warn("Failed to publish location", "error", err)
		}
		return nil
	})
	_ = g.Wait()

	l.mu.Lock()
	l.lastPublished = &fix
	l.lastPublishedAt = l.now()
	l.mu.Unlock()
	return false
}

func (l *Loop) record(fix Fix) {
	l.mu.Lock()
	l.lastFix = &fix
	onFix := l.onFix
	l.mu.Unlock()

	if onFix != nil {
		onFix(fix)
	}
}

func (l *Loop) shouldPublish(fix Fix) bool {
	if l.opts.MinMoveMeters <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastPublished == nil {
		return true
	}
	if l.opts.Heartbeat > 0 && l.now().Sub(l.lastPublishedAt) >= l.opts.Heartbeat {
		return true
	}
	return geo.Distance(l.lastPublished.Point(), fix.Point()) >= l.opts.MinMoveMeters
}

// halt stops the loop from inside its own cycle.
func (l *Loop) halt(done chan struct{}) {
	l.mu.Lock()
	if l.done != done {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.cancel, l.done = nil, nil
	l.state = StateStopped
	l.mu.Unlock()
	l.locator.Release()
}
