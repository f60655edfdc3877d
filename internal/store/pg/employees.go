package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/employee"
)

var _ employee.Store = (*Store)(nil)

const employeeColumns = `id, first_name, last_name, name, email, age, title, role, added_by, created_at`

func (s *Store) CreateEmployee(ctx context.Context, r employee.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into employees (`+employeeColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.FirstName, r.LastName, r.Name, r.Email, r.Age, r.Title, r.Role, r.CreatedBy, r.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: employee %s already exists", auth.ErrInvalidInput, r.ID)
	}
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (employee.Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+employeeColumns+` from employees where id = $1`, id)
	r, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return employee.Record{}, employee.ErrNotFound
	}
	return r, err
}

func (s *Store) ListEmployees(ctx context.Context, f employee.Filter) ([]employee.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.AddedBy != "" {
		rows, err = s.db.QueryContext(ctx, `
			select `+employeeColumns+` from employees where added_by = $1 order by id
		`, f.AddedBy)
	} else {
		rows, err = s.db.QueryContext(ctx, `select `+employeeColumns+` from employees order by id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []employee.Record{}
	for rows.Next() {
		r, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from employees where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return employee.ErrNotFound
	}
	return nil
}

func scanEmployee(row scanner) (employee.Record, error) {
	var r employee.Record
	err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Name, &r.Email, &r.Age, &r.Title, &r.Role, &r.CreatedBy, &r.CreatedAt)
	return r, err
}
