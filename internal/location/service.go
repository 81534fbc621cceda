package location

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/metrics"
	"github.com/askwhyharsh/caddate/internal/user"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/askwhyharsh/caddate/pkg/validator"
)

const (
	DefaultHistoryDays = 7
	MinHistoryDays     = 1
	MaxHistoryDays     = 365
)

type LocationService interface {
	UpdateLocation(ctx context.Context, userID string, in Update) (*UserLocation, error)
	StopSharing(ctx context.Context, userID string) error
	GetSettings(ctx context.Context, userID string) (*Settings, error)
	UpdateSettings(ctx context.Context, userID string, in SettingsUpdate) (*SettingsResult, error)
	History(ctx context.Context, userID string, days int) (*History, error)
	FindNearby(ctx context.Context, requesterID string, radiusMeters float64, limit int) (*NearbyResult, error)
	Limits() Options
}

type Options struct {
	FreshnessWindow     time.Duration
	MinRadiusMeters     float64
	MaxRadiusMeters     float64
	DefaultRadiusMeters float64
	MinLimit            int
	MaxLimit            int
	DefaultLimit        int
}

func DefaultOptions() Options {
	return Options{
		FreshnessWindow:     5 * time.Minute,
		MinRadiusMeters:     100,
		MaxRadiusMeters:     10000,
		DefaultRadiusMeters: 1000,
		MinLimit:            1,
		MaxLimit:            100,
		DefaultLimit:        50,
	}
}

var _ LocationService = (*Service)(nil)

type Service struct {
	store     Store
	users     user.Directory
	validator validator.Validator
	metrics   *metrics.Metrics
	logger    logger.Logger
	opts      Options
	now       func() time.Time
}

func NewService(store Store, users user.Directory, v validator.Validator, m *metrics.Metrics, log logger.Logger, opts Options) *Service {
	return &Service{
		store:     store,
		users:     users,
		validator: v,
		metrics:   m,
		logger:    log,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Limits() Options {
	return s.opts
}

func (s *Service) UpdateLocation(ctx context.Context, userID string, in Update) (*UserLocation, error) {
	if err := s.validator.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		s.metrics.LocationUpdate("invalid")
		return nil, err
	}
	if err := s.validator.ValidateAccuracy(in.Accuracy); err != nil {
		s.metrics.LocationUpdate("invalid")
		return nil, err
	}

	if _, err := s.requireUser(ctx, userID); err != nil {
		s.metrics.LocationUpdate("unknown_user")
		return nil, err
	}

	sharing := true
	if in.IsSharing != nil {
		sharing = *in.IsSharing
	}

	loc := &UserLocation{
		UserID:    userID,
		Position:  &geo.Point{Lat: in.Latitude, Lng: in.Longitude},
		Accuracy:  in.Accuracy,
		IsSharing: sharing,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, loc); err != nil {
		s.metrics.LocationUpdate("error")
		s.logger.Error("Failed to save location", "user_id", userID, "error", err)
		return nil, apperrors.Internal(err, "failed to update location")
	}

	s.metrics.LocationUpdate("ok")
	return loc, nil
}

func (s *Service) StopSharing(ctx context.Context, userID string) error {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.SetSharing(ctx, userID, false); err != nil {
		s.logger.Error("Failed to stop sharing", "user_id", userID, "error", err)
		return apperrors.Internal(err, "failed to stop location sharing")
	}
	return nil
}

func (s *Service) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings := &Settings{Privacy: u.Privacy}
	if settings.Privacy == nil {
		settings.Privacy = map[string]any{}
	}

	loc, err := s.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loc != nil {
		settings.IsSharing = loc.IsSharing
		settings.Accuracy = loc.Accuracy
		settings.LastUpdated = timePtr(loc.UpdatedAt)
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, in SettingsUpdate) (*SettingsResult, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &SettingsResult{Privacy: u.Privacy}

	if in.IsSharing != nil {
		loc, err := s.store.SetSharing(ctx, userID, *in.IsSharing)
		if err != nil {
			return nil, apperrors.Internal(err, "failed to update location settings")
		}
		result.IsSharing = loc.IsSharing
	} else {
		loc, err := s.lookup(ctx, userID)
		if err != nil {
			return nil, err
		}
		result.IsSharing = loc != nil && loc.IsSharing
	}

	if in.Privacy != nil {
		merged, err := s.users.UpdatePrivacy(ctx, userID, in.Privacy)
		if err != nil {
			if apperrors.IsNotFound(err) || apperrors.IsValidation(err) {
				return nil, err
			}
			return nil, apperrors.Internal(err, "failed to update privacy settings")
		}
		result.Privacy = merged
	}

	if result.Privacy == nil {
		result.Privacy = map[string]any{}
	}
	return result, nil
}

// History returns the current snapshot only; no trajectory is retained.
func (s *Service) History(ctx context.Context, userID string, days int) (*History, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	h := &History{Days: clampInt(days, MinHistoryDays, MaxHistoryDays)}

	loc, err := s.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loc != nil {
		h.SharingEnabled = loc.IsSharing
		h.LastUpdated = timePtr(loc.UpdatedAt)
		if loc.Position != nil {
			h.CurrentLocation = &Coordinates{Latitude: loc.Position.Lat, Longitude: loc.Position.Lng, Accuracy: loc.Accuracy}
		}
	}
	return h, nil
}

// FindNearby returns fresh sharing users within radiusMeters of the requester,
// closest first. Radius and limit are clamped to the configured bounds.
func (s *Service) FindNearby(ctx context.Context, requesterID string, radiusMeters float64, limit int) (*NearbyResult, error) {
	started := time.Now()
	result := &NearbyResult{
		Users:  []NearbyUser{},
		Radius: s.ClampRadius(radiusMeters),
		Limit:  s.ClampLimit(limit),
		Status: StatusOK,
	}

	requester, err := s.lookup(ctx, requesterID)
	if err != nil {
		s.metrics.NearbyQuery("error", time.Since(started))
		return nil, err
	}
	switch {
	case requester == nil || requester.Position == nil:
		result.Status = StatusNoLocation
		result.Message = "location not found"
		s.metrics.NearbyQuery(result.Status, time.Since(started))
		return result, nil
	case !requester.IsSharing:
		result.Status = StatusSharingDisabled
		result.Message = "location sharing is disabled"
		s.metrics.NearbyQuery(result.Status, time.Since(started))
		return result, nil
	}

	center := *requester.Position
	since := s.now().Add(-s.opts.FreshnessWindow)

	candidates, err := s.store.Candidates(ctx, center, result.Radius, since)
	if err != nil {
		s.metrics.NearbyQuery("error", time.Since(started))
		s.logger.Error("Failed to load nearby candidates", "user_id", requesterID, "error", err)
		return nil, apperrors.Internal(err, "failed to get nearby users")
	}

	type match struct {
		loc      *UserLocation
		distance int
	}
	matches := make([]match, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == requesterID || !c.Visible(since) {
			continue
		}
		d := geo.Distance(center, *c.Position)
		if d > result.Radius {
			continue
		}
		matches = append(matches, match{loc: c, distance: geo.RoundMeters(d)})
		ids = append(ids, c.UserID)
	}

	profiles, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.metrics.NearbyQuery("error", time.Since(started))
		return nil, apperrors.Internal(err, "failed to load nearby profiles")
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].loc.UserID < matches[j].loc.UserID
	})

	for _, m := range matches {
		if len(result.Users) == result.Limit {
			break
		}
		profile, ok := profiles[m.loc.UserID]
		if !ok || !profile.Available() {
			continue
		}
		result.Users = append(result.Users, NearbyUser{
			UserID:         m.loc.UserID,
			FirstName:      profile.FirstName,
			LastName:       profile.LastName,
			ProfilePicture: profile.ProfilePicture,
			Location: Coordinates{
				Latitude:  m.loc.Position.Lat,
				Longitude: m.loc.Position.Lng,
				Accuracy:  m.loc.Accuracy,
			},
			LastSeen:       m.loc.UpdatedAt,
			DistanceMeters: m.distance,
		})
	}
	result.Total = len(result.Users)

	s.metrics.NearbyQuery(result.Status, time.Since(started))
	return result, nil
}

func (s *Service) ClampRadius(radius float64) float64 {
	switch {
	case math.IsNaN(radius):
		return s.opts.DefaultRadiusMeters
	case radius < s.opts.MinRadiusMeters:
		return s.opts.MinRadiusMeters
	case radius > s.opts.MaxRadiusMeters:
		return s.opts.MaxRadiusMeters
	}
	return radius
}

func (s *Service) ClampLimit(limit int) int {
	return clampInt(limit, s.opts.MinLimit, s.opts.MaxLimit)
}

func (s *Service) requireUser(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.Internal(err, "failed to load user")
	}
	if !u.Available() {
		return nil, apperrors.NotFound(apperrors.ErrUserNotFound)
	}
	return u, nil
}

// lookup returns nil without error when the user has no stored location.
func (s *Service) lookup(ctx context.Context, userID string) (*UserLocation, error) {
	loc, err := s.store.Get(ctx, userID)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load location")
	}
	return loc, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
