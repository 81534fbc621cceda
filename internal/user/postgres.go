package user

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/askwhyharsh/caddate/internal/storage"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var _ Directory = (*PostgresDirectory)(nil)

var userColumns = []string{
	"id", "email", "first_name", "last_name", "profile_picture", "is_active", "deleted_at", "privacy",
}

type PostgresDirectory struct {
	db   storage.DB
	psql sq.StatementBuilderType
}

func NewPostgresDirectory(db storage.DB) *PostgresDirectory {
	return &PostgresDirectory{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	query, args, err := d.psql.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build user query")
	}

	u, err := scanUser(d.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound(apperrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find user %s", id)
	}
	return u, nil
}

func (d *PostgresDirectory) FindByIDs(ctx context.Context, ids []string) (map[string]*User, error) {
	out := make(map[string]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := d.psql.Select(userColumns...).From("users").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build users query")
	}

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		out[u.ID] = u
	}
	return out, errors.Wrap(rows.Err(), "iterate users")
}

func (d *PostgresDirectory) UpdatePrivacy(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(patch)
	if err != nil {
		return nil, apperrors.Validation("privacy", err)
	}

	// jsonb || jsonb is a shallow merge, right side wins
	query, args, err := d.psql.Update("users").
		Set("privacy", sq.Expr("COALESCE(privacy, '{}'::jsonb) || ?::jsonb", string(encoded))).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING privacy").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build privacy update")
	}

	var raw []byte
	if err := d.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.ErrUserNotFound)
		}
		return nil, errors.Wrapf(err, "update privacy for %s", id)
	}

	return decodePrivacy(raw)
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u         User
		picture   *string
		deletedAt *time.Time
		privacy   []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &picture, &u.IsActive, &deletedAt, &privacy); err != nil {
		return nil, err
	}
	u.ProfilePicture = picture
	u.DeletedAt = deletedAt

	p, err := decodePrivacy(privacy)
	if err != nil {
		return nil, err
	}
	u.Privacy = p
	return &u, nil
}

func decodePrivacy(raw []byte) (map[string]any, error) {
	p := map[string]any{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode privacy")
	}
	return p, nil
}
