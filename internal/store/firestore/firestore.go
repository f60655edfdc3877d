// Package firestore stores admin profiles and employee records in Cloud
// Firestore, using the users and employees collections.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/employee"
)

const (
	usersCollection     = "users"
	employeesCollection = "employees"
)

var (
	_ account.Store  = (*Store)(nil)
	_ employee.Store = (*Store)(nil)
)

type Store struct {
	client *fs.Client
}

// Open connects to the project's default database. An empty credentials
// file falls back to application default credentials.
func Open(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *fs.Client) *Store { return &Store{client: client} }

func (s *Store) Close() error { return s.client.Close() }

type profileDoc struct {
	UID       string    `firestore:"uid"`
	Email     string    `firestore:"email"`
	FirstName string    `firestore:"firstName"`
	LastName  string    `firestore:"lastName"`
	PhotoURL  string    `firestore:"photoURL"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toProfileDoc(p account.Profile) profileDoc {
	return profileDoc{
		UID:       p.UID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		PhotoURL:  p.PhotoURL,
		Role:      p.Role.String(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d profileDoc) profile(id string) account.Profile {
	uid := d.UID
	if uid == "" {
		uid = id
	}
	return account.Profile{
		UID:       uid,
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		PhotoURL:  d.PhotoURL,
		Role:      auth.ParseRole(d.Role),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) UpsertProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	ref := s.client.Collection(usersCollection).Doc(p.UID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			var existing profileDoc
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if !existing.CreatedAt.IsZero() {
				p.CreatedAt = existing.CreatedAt
			}
		}
		return tx.Set(ref, toProfileDoc(p))
	})
	if err != nil {
		return account.Profile{}, err
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, uid string) (account.Profile, error) {
	snap, err := s.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if isNotFound(err) {
		return account.Profile{}, account.ErrProfileNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return account.Profile{}, err
	}
	return d.profile(snap.Ref.ID), nil
}

func (s *Store) UpdateProfile(ctx context.Context, uid string, upd account.ProfileUpdate, at time.Time) (account.Profile, error) {
	_, err := s.client.Collection(usersCollection).Doc(uid).Update(ctx, []fs.Update{
		{Path: "firstName", Value: upd.FirstName},
		{Path: "lastName", Value: upd.LastName},
		{Path: "photoURL", Value: upd.PhotoURL},
		{Path: "updatedAt", Value: at},
	})
	if isNotFound(err) {
		return account.Profile{}, account.ErrProfileNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	return s.GetProfile(ctx, uid)
}

func (s *Store) SetProfileRole(ctx context.Context, uid string, role auth.Role, at time.Time) error {
	_, err := s.client.Collection(usersCollection).Doc(uid).Update(ctx, []fs.Update{
		{Path: "role", Value: role.String()},
		{Path: "updatedAt", Value: at},
	})
	if isNotFound(err) {
		return account.ErrProfileNotFound
	}
	return err
}

func (s *Store) ListProfilesByRole(ctx context.Context, role auth.Role) ([]account.Profile, error) {
	return s.listProfiles(ctx, s.client.Collection(usersCollection).Where("role", "==", role.String()))
}

func (s *Store) ListProfiles(ctx context.Context) ([]account.Profile, error) {
	return s.listProfiles(ctx, s.client.Collection(usersCollection).Query)
}

// listProfiles sorts client side so that no composite index is needed.
func (s *Store) listProfiles(ctx context.Context, q fs.Query) ([]account.Profile, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := []account.Profile{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var d profileDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", snap.Ref.ID, err)
		}
		out = append(out, d.profile(snap.Ref.ID))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UID < out[j].UID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type employeeDoc struct {
	FirstName string    `firestore:"firstName,omitempty"`
	LastName  string    `firestore:"lastName,omitempty"`
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email,omitempty"`
	Age       int       `firestore:"age,omitempty"`
	Title     string    `firestore:"title,omitempty"`
	Role      string    `firestore:"role"`
	AddedBy   string    `firestore:"addedBy"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func toEmployeeDoc(r employee.Record) employeeDoc {
	return employeeDoc{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Name:      r.Name,
		Email:     r.Email,
		Age:       r.Age,
		Title:     r.Title,
		Role:      r.Role,
		AddedBy:   r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

func (d employeeDoc) record(id string) employee.Record {
	return employee.Record{
		ID:        id,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Name:      d.Name,
		Email:     d.Email,
		Age:       d.Age,
		Title:     d.Title,
		Role:      d.Role,
		CreatedBy: d.AddedBy,
		CreatedAt: d.CreatedAt,
	}
}

func (s *Store) CreateEmployee(ctx context.Context, r employee.Record) error {
	_, err := s.client.Collection(employeesCollection).Doc(r.ID).Create(ctx, toEmployeeDoc(r))
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: employee %s already exists", auth.ErrInvalidInput, r.ID)
	}
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (employee.Record, error) {
	snap, err := s.client.Collection(employeesCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return employee.Record{}, employee.ErrNotFound
	}
	if err != nil {
		return employee.Record{}, err
	}
	var d employeeDoc
	if err := snap.DataTo(&d); err != nil {
		return employee.Record{}, err
	}
	return d.record(snap.Ref.ID), nil
}

func (s *Store) ListEmployees(ctx context.Context, f employee.Filter) ([]employee.Record, error) {
	q := s.client.Collection(employeesCollection).Query
	if f.AddedBy != "" {
		q = q.Where("addedBy", "==", f.AddedBy)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := []employee.Record{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var d employeeDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode employee %s: %w", snap.Ref.ID, err)
		}
		out = append(out, d.record(snap.Ref.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	_, err := s.client.Collection(employeesCollection).Doc(id).Delete(ctx, fs.Exists)
	if isNotFound(err) {
		return employee.ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}
