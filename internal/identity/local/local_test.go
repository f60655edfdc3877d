package local

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
)

var identityColumns = []string{"uid", "email", "display_name", "photo_url", "role"}

func newTestProvider(t *testing.T) (*Provider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	signer, err := identity.NewSigner("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	p, err := New(db, signer)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, mock
}

func TestVerifyLoadsCurrentRole(t *testing.T) {
	p, mock := newTestProvider(t)
	token, err := p.signer.Sign("uid-1", "a@example.com", auth.RoleSysadmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mock.ExpectQuery("select uid, email, display_name, photo_url, role\\s+from identities\\s+where uid = \\$1").
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows(identityColumns).AddRow("uid-1", "a@example.com", "Ann", "", "admin"))

	id, err := p.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Role != auth.RoleAdmin {
		t.Fatalf("expected stored role admin, got %s", id.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifyUnknownSubject(t *testing.T) {
	p, mock := newTestProvider(t)
	token, _ := p.signer.Sign("ghost", "", auth.RoleAdmin)
	mock.ExpectQuery("from identities").WithArgs("ghost").WillReturnRows(sqlmock.NewRows(identityColumns))

	_, err := p.Verify(context.Background(), token)
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestLookupEmail(t *testing.T) {
	p, mock := newTestProvider(t)

	mock.ExpectQuery("where lower\\(email\\) = \\$1").
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(identityColumns).AddRow("uid-1", "ann@example.com", "", "", ""))
	id, err := p.LookupEmail(context.Background(), " Ann@Example.com")
	if err != nil {
		t.Fatalf("LookupEmail: %v", err)
	}
	if id.UID != "uid-1" || id.Role != auth.RoleUser {
		t.Fatalf("unexpected identity: %+v", id)
	}

	mock.ExpectQuery("where lower\\(email\\) = \\$1").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(identityColumns))
	if _, err := p.LookupEmail(context.Background(), "nobody@example.com"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectQuery("where lower\\(email\\) = \\$1").
		WithArgs("dup@example.com").
		WillReturnRows(sqlmock.NewRows(identityColumns).
			AddRow("uid-1", "dup@example.com", "", "", "").
			AddRow("uid-2", "DUP@example.com", "", "", ""))
	_, err = p.LookupEmail(context.Background(), "dup@example.com")
	if !errors.Is(err, identity.ErrAmbiguous) || !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ambiguous not-found, got %v", err)
	}
}

func TestCreateHashesPlaceholderPassword(t *testing.T) {
	p, mock := newTestProvider(t)

	mock.ExpectExec("insert into identities").
		WithArgs(sqlmock.AnyArg(), "new@example.com", "New Admin", "", argon2Hash{}, "user").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := p.Create(context.Background(), identity.NewIdentity{Email: "New@example.com", DisplayName: "New Admin"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id.UID == "" || id.Role != auth.RoleUser {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	p, mock := newTestProvider(t)
	mock.ExpectExec("insert into identities").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := p.Create(context.Background(), identity.NewIdentity{Email: "a@example.com", Password: "pw"})
	if !errors.Is(err, identity.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	p, mock := newTestProvider(t)
	mock.ExpectExec("update identities set role = \\$2").
		WithArgs("uid-1", "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := p.SetRole(context.Background(), "uid-1", auth.RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	mock.ExpectExec("update identities set role = \\$2").
		WithArgs("missing", "user").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := p.SetRole(context.Background(), "missing", auth.RoleUser); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	p, mock := newTestProvider(t)
	hash, err := identity.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	signInColumns := append(append([]string{}, identityColumns...), "password_hash")
	query := "select uid, email, display_name, photo_url, role, password_hash\\s+from identities\\s+where lower\\(email\\) = \\$1"

	mock.ExpectQuery(query).
		WithArgs("root@example.com").
		WillReturnRows(sqlmock.NewRows(signInColumns).AddRow("uid-1", "root@example.com", "Root", "", "sysadmin", hash))
	id, err := p.SignIn(context.Background(), " Root@Example.com ", "correct horse battery")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if id.UID != "uid-1" || id.Role != auth.RoleSysadmin {
		t.Fatalf("unexpected identity: %+v", id)
	}

	mock.ExpectQuery(query).
		WithArgs("root@example.com").
		WillReturnRows(sqlmock.NewRows(signInColumns).AddRow("uid-1", "root@example.com", "Root", "", "sysadmin", hash))
	if _, err := p.SignIn(context.Background(), "root@example.com", "wrong password!"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	mock.ExpectQuery(query).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(signInColumns))
	_, err = p.SignIn(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, identity.ErrInvalidCredentials) || !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetPassword(t *testing.T) {
	p, mock := newTestProvider(t)

	if err := p.SetPassword(context.Background(), "uid-1", "short"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	mock.ExpectExec("update identities set password_hash = \\$2").
		WithArgs("uid-1", argon2Hash{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := p.SetPassword(context.Background(), "uid-1", "a long enough secret"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	mock.ExpectExec("update identities set password_hash = \\$2").
		WithArgs("missing", argon2Hash{}).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := p.SetPassword(context.Background(), "missing", "a long enough secret"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type argon2Hash struct{}

func (argon2Hash) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "$argon2id$v=19$")
}
