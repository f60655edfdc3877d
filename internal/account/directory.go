package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/lock"
	"staffdesk.org/internal/obs"
)

const DefaultTimeout = 5 * time.Second

// Directory is the only writer of role claims. Every mutation writes the
// identity provider first and the profile store second; Reconcile repairs
// profiles left behind by a failure between the two.
type Directory struct {
	idp     identity.Provider
	store   Store
	locker  lock.Locker
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Directory)

// WithLocker replaces the in-process per-identity lock.
func WithLocker(l lock.Locker) Option {
	return func(d *Directory) {
		if l != nil {
			d.locker = l
		}
	}
}

// WithTimeout bounds every upstream call.
func WithTimeout(t time.Duration) Option {
	return func(d *Directory) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithClock replaces the time source. Readings are truncated like the
// default clock's.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = func() time.Time { return storeTime(now()) }
		}
	}
}

// storeTime drops precision below what Postgres timestamptz and Firestore
// keep, so a profile read back equals the one returned on write.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func NewDirectory(idp identity.Provider, store Store, opts ...Option) *Directory {
	d := &Directory{
		idp:     idp,
		store:   store,
		locker:  lock.NewMemory(),
		timeout: DefaultTimeout,
		now:     func() time.Time { return storeTime(time.Now()) },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Promote grants the admin role to the identity registered under in.Email,
// creating the identity when none exists, and records its profile.
// Repeating a promotion for the same email is a no-op apart from the
// profile fields it rewrites.
func (d *Directory) Promote(ctx context.Context, caller auth.Caller, in PromoteInput) (Profile, error) {
	if err := auth.Require(caller, auth.ActionPromoteAdmin); err != nil {
		return Profile{}, err
	}
	if err := in.normalize(); err != nil {
		return Profile{}, err
	}
	return d.grant(ctx, in, auth.RoleAdmin, audit.EventAdminPromoted)
}

// BootstrapSysadmin grants the sysadmin role without a caller. It is only
// reachable from the command line.
func (d *Directory) BootstrapSysadmin(ctx context.Context, in PromoteInput) (Profile, error) {
	if err := in.normalize(); err != nil {
		return Profile{}, err
	}
	return d.grant(ctx, in, auth.RoleSysadmin, audit.EventSysadminBootstrap)
}

func (d *Directory) grant(ctx context.Context, in PromoteInput, role auth.Role, event string) (Profile, error) {
	unlockEmail, err := d.lock(ctx, "email:"+in.Email)
	if err != nil {
		return Profile{}, err
	}
	defer unlockEmail()

	ident, created, err := d.resolveOrCreate(ctx, in)
	if err != nil {
		return Profile{}, err
	}
	if role == auth.RoleAdmin && ident.Role == auth.RoleSysadmin {
		return Profile{}, fmt.Errorf("%w: %s is a sysadmin", auth.ErrInvalidInput, in.Email)
	}

	unlockUID, err := d.lock(ctx, "uid:"+ident.UID)
	if err != nil {
		return Profile{}, err
	}
	defer unlockUID()

	err = d.call(ctx, "identity", "set_role", func(ctx context.Context) error {
		return d.idp.SetRole(ctx, ident.UID, role)
	})
	if err != nil {
		return Profile{}, err
	}

	now := d.now()
	p := Profile{
		UID:       ident.UID,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		PhotoURL:  in.PhotoURL,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = d.call(ctx, "store", "upsert_profile", func(ctx context.Context) error {
		var err error
		p, err = d.store.UpsertProfile(ctx, p)
		return err
	})
	if err != nil {
		return Profile{}, err
	}

	_ = audit.LogEvent(ctx, event,
		zap.String("uid", p.UID),
		zap.String("email", p.Email),
		zap.Bool("identity_created", created))
	return p, nil
}

func (d *Directory) resolveOrCreate(ctx context.Context, in PromoteInput) (identity.Identity, bool, error) {
	ident, err := d.lookup(ctx, in.Email)
	if err == nil {
		return ident, false, nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return identity.Identity{}, false, err
	}

	password, err := identity.GeneratePassword()
	if err != nil {
		return identity.Identity{}, false, err
	}
	var exists bool
	err = d.call(ctx, "identity", "create", func(ctx context.Context) error {
		var err error
		ident, err = d.idp.Create(ctx, identity.NewIdentity{
			Email:       in.Email,
			Password:    password,
			DisplayName: strings.TrimSpace(in.FirstName + " " + in.LastName),
			PhotoURL:    in.PhotoURL,
		})
		if errors.Is(err, identity.ErrEmailExists) {
			exists = true
			return nil
		}
		return err
	})
	if err != nil {
		return identity.Identity{}, false, err
	}
	if exists {
		// Created concurrently by another instance.
		ident, err = d.lookup(ctx, in.Email)
		return ident, false, err
	}
	obs.From(ctx).Warn("identity created with placeholder credential",
		zap.String("uid", ident.UID), zap.String("email", in.Email))
	return ident, true, nil
}

func (d *Directory) lookup(ctx context.Context, email string) (identity.Identity, error) {
	var ident identity.Identity
	err := d.call(ctx, "identity", "lookup_email", func(ctx context.Context) error {
		var err error
		ident, err = d.idp.LookupEmail(ctx, email)
		return err
	})
	return ident, err
}

// Demote resets the identity's role claim to user and mirrors the change in
// its profile. A missing profile is not an error.
func (d *Directory) Demote(ctx context.Context, caller auth.Caller, uid string) error {
	if err := auth.Require(caller, auth.ActionDemoteAdmin); err != nil {
		return err
	}
	return d.demote(ctx, uid)
}

// DemoteEmail resolves email to its identity and demotes it, returning the
// uid. The policy is evaluated once for the whole operation.
func (d *Directory) DemoteEmail(ctx context.Context, caller auth.Caller, email string) (string, error) {
	if err := auth.Require(caller, auth.ActionDemoteAdmin); err != nil {
		return "", err
	}
	uid, err := d.resolveUID(ctx, email)
	if err != nil {
		return "", err
	}
	return uid, d.demote(ctx, uid)
}

func (d *Directory) demote(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("%w: uid is required", auth.ErrInvalidInput)
	}

	unlock, err := d.lock(ctx, "uid:"+uid)
	if err != nil {
		return err
	}
	defer unlock()

	var ident identity.Identity
	err = d.call(ctx, "identity", "get", func(ctx context.Context) error {
		var err error
		ident, err = d.idp.Get(ctx, uid)
		return err
	})
	if err != nil {
		return err
	}
	if ident.Role == auth.RoleSysadmin {
		return fmt.Errorf("%w: cannot demote a sysadmin", auth.ErrInvalidInput)
	}

	err = d.call(ctx, "identity", "set_role", func(ctx context.Context) error {
		return d.idp.SetRole(ctx, uid, auth.RoleUser)
	})
	if err != nil {
		return err
	}
	err = d.call(ctx, "store", "set_profile_role", func(ctx context.Context) error {
		return d.store.SetProfileRole(ctx, uid, auth.RoleUser, d.now())
	})
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return err
	}

	_ = audit.LogEvent(ctx, audit.EventAdminDemoted,
		zap.String("uid", uid),
		zap.String("email", ident.Email),
		zap.Bool("profile_found", err == nil))
	return nil
}

// ResolveUID translates an email into an identity uid.
func (d *Directory) ResolveUID(ctx context.Context, caller auth.Caller, email string) (string, error) {
	if err := auth.Require(caller, auth.ActionDemoteAdmin); err != nil {
		return "", err
	}
	return d.resolveUID(ctx, email)
}

func (d *Directory) resolveUID(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	ident, err := d.lookup(ctx, email)
	if err != nil {
		return "", err
	}
	return ident.UID, nil
}

// UpdateProfile rewrites the descriptive fields of an admin profile.
func (d *Directory) UpdateProfile(ctx context.Context, caller auth.Caller, uid string, upd ProfileUpdate) (Profile, error) {
	if err := auth.Require(caller, auth.ActionUpdateAdmin); err != nil {
		return Profile{}, err
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return Profile{}, fmt.Errorf("%w: uid is required", auth.ErrInvalidInput)
	}
	if err := upd.normalize(); err != nil {
		return Profile{}, err
	}

	unlock, err := d.lock(ctx, "uid:"+uid)
	if err != nil {
		return Profile{}, err
	}
	defer unlock()

	var p Profile
	err = d.call(ctx, "store", "update_profile", func(ctx context.Context) error {
		var err error
		p, err = d.store.UpdateProfile(ctx, uid, upd, d.now())
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	_ = audit.LogEvent(ctx, audit.EventAdminUpdated, zap.String("uid", uid))
	return p, nil
}

// ListAdmins returns every profile whose mirrored role is admin.
func (d *Directory) ListAdmins(ctx context.Context, caller auth.Caller) ([]Profile, error) {
	if err := auth.Require(caller, auth.ActionListAdmins); err != nil {
		return nil, err
	}
	var out []Profile
	err := d.call(ctx, "store", "list_profiles", func(ctx context.Context) error {
		var err error
		out, err = d.store.ListProfilesByRole(ctx, auth.RoleAdmin)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Profile{}
	}
	return out, nil
}

// SuperAdmin returns the earliest sysadmin profile on record, or the caller
// when no sysadmin profile exists.
func (d *Directory) SuperAdmin(ctx context.Context, caller auth.Caller) (SuperAdmin, error) {
	if err := auth.Require(caller, auth.ActionViewSuperAdmin); err != nil {
		return SuperAdmin{}, err
	}
	var profiles []Profile
	err := d.call(ctx, "store", "list_profiles", func(ctx context.Context) error {
		var err error
		profiles, err = d.store.ListProfilesByRole(ctx, auth.RoleSysadmin)
		return err
	})
	if err != nil {
		return SuperAdmin{}, err
	}
	if len(profiles) == 0 {
		return SuperAdmin{UID: caller.UID, Email: caller.Email}, nil
	}
	p := profiles[0]
	return SuperAdmin{UID: p.UID, Email: p.Email, FirstName: p.FirstName, LastName: p.LastName}, nil
}

// ReconcileReport summarizes one Reconcile sweep.
type ReconcileReport struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	Orphaned int `json:"orphaned"`
	Failed   int `json:"failed"`
}

// Reconcile rewrites every profile whose role disagrees with its identity's
// claim. Profiles whose identity no longer exists are set to user. Failures
// on individual profiles do not stop the sweep.
func (d *Directory) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var (
		report   ReconcileReport
		profiles []Profile
	)
	err := d.call(ctx, "store", "list_profiles", func(ctx context.Context) error {
		var err error
		profiles, err = d.store.ListProfiles(ctx)
		return err
	})
	if err != nil {
		return report, err
	}

	var errs []error
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Checked++
		changed, orphan, err := d.reconcileOne(ctx, p)
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("reconcile %s: %w", p.UID, err))
		case orphan:
			report.Orphaned++
		case changed:
			report.Updated++
		}
	}
	obs.From(ctx).Info("reconcile complete",
		zap.Int("checked", report.Checked),
		zap.Int("updated", report.Updated),
		zap.Int("orphaned", report.Orphaned),
		zap.Int("failed", report.Failed))
	return report, errors.Join(errs...)
}

func (d *Directory) reconcileOne(ctx context.Context, p Profile) (changed, orphan bool, err error) {
	unlock, err := d.lock(ctx, "uid:"+p.UID)
	if err != nil {
		return false, false, err
	}
	defer unlock()

	want := auth.RoleUser
	var ident identity.Identity
	err = d.call(ctx, "identity", "get", func(ctx context.Context) error {
		var err error
		ident, err = d.idp.Get(ctx, p.UID)
		return err
	})
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		orphan = true
	case err != nil:
		return false, false, err
	default:
		want = ident.Role
	}
	if p.Role == want {
		return false, false, nil
	}

	err = d.call(ctx, "store", "set_profile_role", func(ctx context.Context) error {
		return d.store.SetProfileRole(ctx, p.UID, want, d.now())
	})
	if err != nil {
		return false, false, err
	}
	_ = audit.LogEvent(ctx, audit.EventProfileReconciled,
		zap.String("uid", p.UID),
		zap.String("from", p.Role.String()),
		zap.String("to", want.String()),
		zap.Bool("orphaned", orphan))
	return true, orphan, nil
}

// call runs fn under the upstream timeout, records its outcome and maps
// the error into the auth taxonomy.
func (d *Directory) call(ctx context.Context, component, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	start := time.Now()
	err := fn(cctx)
	obs.ObserveUpstream(component, op, start, err)
	return auth.Upstream(component+" "+op, err)
}

func (d *Directory) lock(ctx context.Context, key string) (func(), error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	start := time.Now()
	unlock, err := d.locker.Lock(cctx, key)
	obs.ObserveUpstream("lock", "acquire", start, err)
	if err != nil {
		return nil, auth.Upstream("lock "+key, err)
	}
	return unlock, nil
}
