package location

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/storage"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var _ Store = (*PostgresStore)(nil)

var locationColumns = []string{"user_id", "latitude", "longitude", "accuracy", "is_sharing", "updated_at"}

type PostgresStore struct {
	db   storage.DB
	psql sq.StatementBuilderType
}

func NewPostgresStore(db storage.DB) *PostgresStore {
	return &PostgresStore{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*UserLocation, error) {
	query, args, err := s.psql.Select(locationColumns...).
		From("user_locations").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build location query")
	}

	loc, err := scanLocation(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound(apperrors.ErrLocationNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get location for %s", userID)
	}
	return loc, nil
}

func (s *PostgresStore) Save(ctx context.Context, loc *UserLocation) error {
	var lat, lng *float64
	if loc.Position != nil {
		lat, lng = &loc.Position.Lat, &loc.Position.Lng
	}

	query, args, err := s.psql.Insert("user_locations").
		Columns(locationColumns...).
		Values(loc.UserID, lat, lng, loc.Accuracy, loc.IsSharing, loc.UpdatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			accuracy = EXCLUDED.accuracy,
			is_sharing = EXCLUDED.is_sharing,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build location upsert")
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "save location for %s", loc.UserID)
	}
	return nil
}

func (s *PostgresStore) SetSharing(ctx context.Context, userID string, sharing bool) (*UserLocation, error) {
	query, args, err := s.psql.Insert("user_locations").
		Columns("user_id", "is_sharing").
		Values(userID, sharing).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET is_sharing = EXCLUDED.is_sharing RETURNING user_id, latitude, longitude, accuracy, is_sharing, updated_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sharing upsert")
	}

	loc, err := scanLocation(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, errors.Wrapf(err, "set sharing for %s", userID)
	}
	return loc, nil
}

func (s *PostgresStore) Candidates(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]*UserLocation, error) {
	bounds := geo.BoundsAround(center, radiusMeters)

	builder := s.psql.Select(locationColumns...).
		From("user_locations").
		Where(sq.Eq{"is_sharing": true}).
		Where(sq.GtOrEq{"updated_at": since}).
		Where("latitude BETWEEN ? AND ?", bounds.MinLat, bounds.MaxLat)
	if !bounds.FullLng {
		builder = builder.Where("longitude BETWEEN ? AND ?", bounds.MinLng, bounds.MaxLng)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build candidates query")
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query candidates")
	}
	defer rows.Close()

	var out []*UserLocation
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		if loc.Visible(since) {
			out = append(out, loc)
		}
	}
	return out, errors.Wrap(rows.Err(), "iterate candidates")
}

// Prune is a no-op: freshness is filtered in SQL and the partial index only
// covers sharing rows.
func (s *PostgresStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func scanLocation(row pgx.Row) (*UserLocation, error) {
	var (
		loc       UserLocation
		lat, lng  *float64
		updatedAt *time.Time
	)
	if err := row.Scan(&loc.UserID, &lat, &lng, &loc.Accuracy, &loc.IsSharing, &updatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		loc.Position = &geo.Point{Lat: *lat, Lng: *lng}
	}
	if updatedAt != nil {
		loc.UpdatedAt = *updatedAt
	}
	return &loc, nil
}
