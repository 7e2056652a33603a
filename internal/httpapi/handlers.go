package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"transconecta.io/internal/assignment"
	"transconecta.io/internal/auth"
	"transconecta.io/internal/fatigue"
	"transconecta.io/internal/hours"
	"transconecta.io/internal/obs"
	"transconecta.io/internal/otp"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
)

const serviceName = "transconecta-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when there is one.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Registry    *registry.Registry
	Permissions *permission.Service
	Hours       *hours.Ledger
	Fatigue     *fatigue.Engine
	Assignments *assignment.Machine
	// Recovery is optional; without it the recovery routes are not mounted.
	Recovery *otp.Service

	Ready       readinessChecker
	Version     string
	TokenTTL    time.Duration
	RateBurst   int
	RatePerSec  int
	CORSOrigins []string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string

	reg         *registry.Registry
	perms       *permission.Service
	hours       *hours.Ledger
	fatigue     *fatigue.Engine
	assignments *assignment.Machine
	recovery    *otp.Service

	tokenTTL    time.Duration
	limiter     *RateLimiter
	corsOrigins []string
}

func New(d Deps) (*API, error) {
	switch {
	case d.Registry == nil:
		return nil, errors.New("registry is required")
	case d.Permissions == nil:
		return nil, errors.New("permission service is required")
	case d.Hours == nil:
		return nil, errors.New("hours ledger is required")
	case d.Fatigue == nil:
		return nil, errors.New("fatigue engine is required")
	case d.Assignments == nil:
		return nil, errors.New("assignment machine is required")
	}
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  d.Ready,
		version:     d.Version,
		reg:         d.Registry,
		perms:       d.Permissions,
		hours:       d.Hours,
		fatigue:     d.Fatigue,
		assignments: d.Assignments,
		recovery:    d.Recovery,
		tokenTTL:    d.TokenTTL,
		corsOrigins: d.CORSOrigins,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = auth.DefaultTokenTTL
	}
	burst, perSec := d.RateBurst, d.RatePerSec
	if burst <= 0 {
		burst = 20
	}
	if perSec <= 0 {
		perSec = 10
	}
	a.limiter = NewRateLimiter(burst, perSec)

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.routeAuth()
	a.routePermissions()
	a.routeVehicles()
	a.routeDrivers()
	a.routeCatalog()
	a.routeAccounts()
	a.routeAssignments()

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = a.limiter.Middleware(h)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// SweepRateLimits evicts idle rate-limit buckets until ctx is done.
func (a *API) SweepRateLimits(ctx context.Context) {
	a.limiter.Run(ctx, time.Minute)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
