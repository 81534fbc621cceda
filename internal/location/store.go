package location

import (
	"context"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
)

// Store persists one UserLocation per user. Get returns apperrors.ErrLocationNotFound
// (wrapped as NotFound) when the user never wrote a location.
type Store interface {
	Get(ctx context.Context, userID string) (*UserLocation, error)
	// Save replaces the user's record in a single write.
	Save(ctx context.Context, loc *UserLocation) error
	// SetSharing flips the sharing flag keeping position and timestamp,
	// creating a position-less record when none exists.
	SetSharing(ctx context.Context, userID string, sharing bool) (*UserLocation, error)
	// Candidates returns sharing users updated at or after since that may lie
	// within radiusMeters of center. It may over-approximate the radius.
	Candidates(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]*UserLocation, error)
	// Prune drops users last updated before the cutoff from the proximity index.
	// Records themselves are retained.
	Prune(ctx context.Context, before time.Time) (int, error)
}
