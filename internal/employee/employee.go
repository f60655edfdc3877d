// Package employee manages employee records on behalf of admin-tier callers.
package employee

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"staffdesk.org/internal/auth"
)

// ErrNotFound is returned by stores when no record exists for an id.
var ErrNotFound = fmt.Errorf("employee: record %w", auth.ErrNotFound)

// Record is a stored employee. CreatedBy is the uid of the admin who
// created it and is serialized as addedBy.
type Record struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Age       int       `json:"age,omitempty"`
	Title     string    `json:"title,omitempty"`
	Role      string    `json:"role"`
	CreatedBy string    `json:"addedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEmployee is the input to Registry.Create. Either Name or both
// FirstName and LastName must be set.
type NewEmployee struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Title     string `json:"title"`
	Role      string `json:"role"`
}

func (in *NewEmployee) normalize() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Title = strings.TrimSpace(in.Title)
	in.Role = strings.TrimSpace(in.Role)

	if in.Role == "" {
		return fmt.Errorf("%w: role is required", auth.ErrInvalidInput)
	}
	if in.Name == "" {
		if in.FirstName == "" || in.LastName == "" {
			return fmt.Errorf("%w: name or first and last name are required", auth.ErrInvalidInput)
		}
		in.Name = in.FirstName + " " + in.LastName
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return fmt.Errorf("%w: malformed email %q", auth.ErrInvalidInput, in.Email)
		}
	}
	if in.Age < 0 || in.Age > 150 {
		return fmt.Errorf("%w: age out of range", auth.ErrInvalidInput)
	}
	return nil
}

// Filter narrows List. Zero value matches every record.
type Filter struct {
	AddedBy string
}

func (f Filter) Match(r Record) bool {
	return f.AddedBy == "" || r.CreatedBy == f.AddedBy
}

// Store persists employee records.
type Store interface {
	CreateEmployee(ctx context.Context, r Record) error
	GetEmployee(ctx context.Context, id string) (Record, error)
	// ListEmployees returns matching records ordered by creation time.
	ListEmployees(ctx context.Context, f Filter) ([]Record, error)
	// DeleteEmployee returns ErrNotFound when id does not exist.
	DeleteEmployee(ctx context.Context, id string) error
}
