package employee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/ids"
	"staffdesk.org/internal/obs"
)

const DefaultTimeout = 5 * time.Second

// Registry enforces the role policy in front of a Store.
type Registry struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Registry)

func WithTimeout(t time.Duration) Option {
	return func(r *Registry) {
		if t > 0 {
			r.timeout = t
		}
	}
}

// WithClock replaces the time source. Readings are truncated to the
// microsecond like the default clock's.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = func() time.Time { return storeTime(now()) }
		}
	}
}

// storeTime matches the resolution of Postgres timestamptz and Firestore
// timestamps so Create and Get return equal records.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		timeout: DefaultTimeout,
		now:     func() time.Time { return storeTime(time.Now()) },
		newID:   ids.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Create(ctx context.Context, caller auth.Caller, in NewEmployee) (Record, error) {
	if err := auth.Require(caller, auth.ActionCreateEmployee); err != nil {
		return Record{}, err
	}
	if err := in.normalize(); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:        r.newID(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Name:      in.Name,
		Email:     in.Email,
		Age:       in.Age,
		Title:     in.Title,
		Role:      in.Role,
		CreatedBy: caller.UID,
		CreatedAt: r.now(),
	}
	err := r.call(ctx, "create_employee", func(ctx context.Context) error {
		return r.store.CreateEmployee(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	_ = audit.LogEvent(ctx, audit.EventEmployeeCreated, zap.String("employee_id", rec.ID))
	return rec, nil
}

// List returns the records matching f. An empty collection is an empty
// slice, not an error.
func (r *Registry) List(ctx context.Context, caller auth.Caller, f Filter) ([]Record, error) {
	if err := auth.Require(caller, auth.ActionListEmployees); err != nil {
		return nil, err
	}
	f.AddedBy = strings.TrimSpace(f.AddedBy)
	var out []Record
	err := r.call(ctx, "list_employees", func(ctx context.Context) error {
		var err error
		out, err = r.store.ListEmployees(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, caller auth.Caller, id string) (Record, error) {
	if err := auth.Require(caller, auth.ActionViewEmployee); err != nil {
		return Record{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: id is required", auth.ErrInvalidInput)
	}
	var rec Record
	err := r.call(ctx, "get_employee", func(ctx context.Context) error {
		var err error
		rec, err = r.store.GetEmployee(ctx, id)
		return err
	})
	return rec, err
}

// Delete removes a record. Deleting an unknown or already deleted id
// reports ErrNotFound.
func (r *Registry) Delete(ctx context.Context, caller auth.Caller, id string) error {
	if err := auth.Require(caller, auth.ActionDeleteEmployee); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", auth.ErrInvalidInput)
	}
	err := r.call(ctx, "delete_employee", func(ctx context.Context) error {
		return r.store.DeleteEmployee(ctx, id)
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, audit.EventEmployeeDeleted, zap.String("employee_id", id))
	return nil
}

func (r *Registry) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	err := fn(cctx)
	obs.ObserveUpstream("store", op, start, err)
	return auth.Upstream("store "+op, err)
}
