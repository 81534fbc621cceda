package client

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/tracker"
)

var _ tracker.Locator = (*SimulatedLocator)(nil)

// SimulatedLocator is a GPS stand-in that random-walks around a start point.
type SimulatedLocator struct {
	mu         sync.Mutex
	position   geo.Point
	stepMeters float64
	accuracy   float64
	rng        *rand.Rand
	last       *tracker.Fix
	granted    bool
	disabled   bool
	released   bool
	now        func() time.Time
}

func NewSimulatedLocator(start geo.Point, stepMeters float64, seed uint64) *SimulatedLocator {
	return &SimulatedLocator{
		position:   start,
		stepMeters: stepMeters,
		accuracy:   10,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		granted:    true,
		now:        time.Now,
	}
}

// Deny makes the next permission request fail.
func (l *SimulatedLocator) Deny() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.granted = false
}

// Disable simulates the OS turning location services off.
func (l *SimulatedLocator) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled = true
}

func (l *SimulatedLocator) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = false
	return l.granted, nil
}

func (l *SimulatedLocator) CurrentPosition(ctx context.Context, maxAge time.Duration) (tracker.Fix, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Fix{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled {
		return tracker.Fix{}, tracker.ErrLocationServicesDisabled
	}
	now := l.now()
	if l.last != nil && maxAge > 0 && now.Sub(l.last.Timestamp) <= maxAge {
		return *l.last, nil
	}

	north := (l.rng.Float64()*2 - 1) * l.stepMeters
	east := (l.rng.Float64()*2 - 1) * l.stepMeters
	l.position = geo.Offset(l.position, north, east)

	accuracy := l.accuracy
	fix := tracker.Fix{
		Latitude:  l.position.Lat,
		Longitude: l.position.Lng,
		Accuracy:  &accuracy,
		Timestamp: now,
	}
	l.last = &fix
	return fix, nil
}

func (l *SimulatedLocator) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	l.last = nil
}

func (l *SimulatedLocator) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}
