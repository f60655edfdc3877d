package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/employee"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/obs"
)

const serviceName = "staffdesk-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe runs every check in order and reports the first failure.
type ReadyProbe struct {
	Checks []func(context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for _, check := range rp.Checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Options tunes the HTTP surface. Zero values take defaults.
type Options struct {
	Version         string
	CORSOrigins     []string
	MaxBodyBytes    int64
	RateBurst       int
	RatePerSecond   float64
	UpstreamTimeout time.Duration
	// Passwords enables POST /v1/auth/token. Nil on backends whose clients
	// sign in elsewhere.
	Passwords identity.PasswordAuthenticator
	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For
	// header is believed.
	TrustedProxies []string
}

// API is the HTTP layer in front of the account directory and the
// employee registry.
type API struct {
	identity  identity.Provider
	directory *account.Directory
	registry  *employee.Registry
	ready     readinessChecker
	opts      Options
	proxies   []netip.Prefix
}

func New(idp identity.Provider, dir *account.Directory, reg *employee.Registry, ready readinessChecker, opts Options) *API {
	if ready == nil {
		ready = ReadyProbe{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 5 * time.Second
	}
	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		obs.L().Warn("ignoring trusted proxies", zap.Error(err))
		proxies = nil
	}
	return &API{
		identity:  idp,
		directory: dir,
		registry:  reg,
		ready:     ready,
		opts:      opts,
		proxies:   proxies,
	}
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())
	if a.opts.Passwords != nil {
		r.Post("/v1/auth/token", a.handleAuthToken)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		r.Post("/login", a.handleLogin)

		r.Post("/add-admin", a.handleAddAdmin)
		r.Post("/remove-admin", a.handleRemoveAdmin)
		r.Post("/update-admin", a.handleUpdateAdmin)
		r.Get("/admin-users", a.handleAdminUsers)
		r.Get("/super-admin", a.handleSuperAdmin)

		r.Post("/api/employees", a.handleCreateEmployee)
		r.Get("/api/employees", a.handleListEmployees)
		r.Get("/api/employees/{id}", a.handleGetEmployee)
		r.Delete("/delete-employee/{id}", a.handleDeleteEmployee)
	})

	var h http.Handler = r
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = CORS(a.opts.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(a.proxies)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.UpstreamTimeout)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.From(r.Context()).Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
