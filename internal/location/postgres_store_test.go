package location

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	lat, lng, acc := 40.9884, 29.0255, 12.5
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, latitude, longitude, accuracy, is_sharing, updated_at FROM user_locations WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(locationColumns).AddRow("u1", &lat, &lng, &acc, true, &at))

	loc, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, loc.Position)
	assert.Equal(t, lat, loc.Position.Lat)
	assert.Equal(t, lng, loc.Position.Lng)
	assert.Equal(t, acc, *loc.Accuracy)
	assert.True(t, loc.IsSharing)
	assert.True(t, loc.UpdatedAt.Equal(at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_locations WHERE user_id = $1")).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_locations (user_id,latitude,longitude,accuracy,is_sharing,updated_at) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (user_id) DO UPDATE SET")).
		WithArgs("u1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), true, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), sharingAt("u1", reference, at)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO user_locations").WillReturnError(assert.AnError)

	err := s.Save(context.Background(), sharingAt("u1", reference, time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPostgresStore_SetSharing(t *testing.T) {
	s, mock := newMockStore(t)
	lat, lng := 40.9884, 29.0255
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_locations (user_id,is_sharing) VALUES ($1,$2) ON CONFLICT (user_id) DO UPDATE SET is_sharing = EXCLUDED.is_sharing RETURNING")).
		WithArgs("u1", false).
		WillReturnRows(pgxmock.NewRows(locationColumns).AddRow("u1", &lat, &lng, nil, false, &at))

	loc, err := s.SetSharing(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.False(t, loc.IsSharing)
	require.NotNil(t, loc.Position)
	assert.Nil(t, loc.Accuracy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Candidates(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-5 * time.Minute)
	lat, lng := 40.9889, 29.0255
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_locations WHERE is_sharing = $1 AND updated_at >= $2 AND latitude BETWEEN $3 AND $4 AND longitude BETWEEN $5 AND $6")).
		WithArgs(true, since, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(locationColumns).
			AddRow("near", &lat, &lng, nil, true, &at).
			AddRow("nowhere", nil, nil, nil, true, &at))

	found, err := s.Candidates(context.Background(), reference, 1000, since)
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, ids(found))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CandidatesNearPoleSkipsLongitude(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-5 * time.Minute)

	mock.ExpectQuery(`latitude BETWEEN \$3 AND \$4$`).
		WithArgs(true, since, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(locationColumns))

	found, err := s.Candidates(context.Background(), geo.Point{Lat: 89.99, Lng: 0}, 5000, since)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PruneIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	pruned, err := s.Prune(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
