package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
)

var _ account.Store = (*Store)(nil)

const profileColumns = `uid, email, first_name, last_name, photo_url, role, created_at, updated_at`

func (s *Store) UpsertProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into admin_profiles (uid, email, first_name, last_name, photo_url, role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (uid) do update
		set email = excluded.email,
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    photo_url = excluded.photo_url,
		    role = excluded.role,
		    updated_at = excluded.updated_at
		returning `+profileColumns,
		p.UID, p.Email, p.FirstName, p.LastName, p.PhotoURL, p.Role.String(), p.CreatedAt, p.UpdatedAt)
	return scanProfile(row)
}

func (s *Store) GetProfile(ctx context.Context, uid string) (account.Profile, error) {
	row := s.db.QueryRowContext(ctx, `select `+profileColumns+` from admin_profiles where uid = $1`, uid)
	return scanProfile(row)
}

func (s *Store) UpdateProfile(ctx context.Context, uid string, upd account.ProfileUpdate, at time.Time) (account.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		update admin_profiles
		set first_name = $2, last_name = $3, photo_url = $4, updated_at = $5
		where uid = $1
		returning `+profileColumns,
		uid, upd.FirstName, upd.LastName, upd.PhotoURL, at)
	return scanProfile(row)
}

func (s *Store) SetProfileRole(ctx context.Context, uid string, role auth.Role, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update admin_profiles set role = $2, updated_at = $3 where uid = $1
	`, uid, role.String(), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrProfileNotFound
	}
	return nil
}

func (s *Store) ListProfilesByRole(ctx context.Context, role auth.Role) ([]account.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+`
		from admin_profiles
		where role = $1
		order by created_at, uid
	`, role.String())
	if err != nil {
		return nil, err
	}
	return collectProfiles(rows)
}

func (s *Store) ListProfiles(ctx context.Context) ([]account.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+`
		from admin_profiles
		order by created_at, uid
	`)
	if err != nil {
		return nil, err
	}
	return collectProfiles(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (account.Profile, error) {
	var (
		p    account.Profile
		role string
	)
	err := row.Scan(&p.UID, &p.Email, &p.FirstName, &p.LastName, &p.PhotoURL, &role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Profile{}, account.ErrProfileNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	p.Role = auth.ParseRole(role)
	return p, nil
}

func collectProfiles(rows *sql.Rows) ([]account.Profile, error) {
	defer rows.Close()
	out := []account.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
