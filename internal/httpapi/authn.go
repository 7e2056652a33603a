package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"transconecta.io/internal/auth"
	"transconecta.io/internal/fleet"
	"transconecta.io/internal/permission"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token to a live user row on every request,
// so deactivation and role changes apply without waiting for token expiry.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		u, err := a.reg.GetUser(r.Context(), userID)
		switch {
		case errors.Is(err, fleet.ErrNotFound):
			unauthorized(w, r, "user no longer exists")
			return
		case err != nil:
			writeFailure(w, r, err)
			return
		}
		if u.Status != fleet.StatusActive {
			writeError(w, r, http.StatusForbidden, "user is inactive")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{
			UserID: u.ID,
			Role:   u.RoleName,
			Name:   u.Name,
			Email:  u.Email,
		})
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require admits the caller only when their role grants gate.
func (a *API) require(gate permission.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		allowed, err := a.perms.Resolve(r.Context(), id.Role, gate.Module, gate.Action)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if !allowed {
			writeError(w, r, http.StatusForbidden, "permission denied: "+gate.String())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authed mounts h behind authentication only.
func (a *API) authed(pattern string, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.withAuth(h))
}

// gated mounts h behind authentication and a module:action check.
func (a *API) gated(pattern, module, action string, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.withAuth(a.require(permission.Gate{Module: module, Action: action}, h)))
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="transconecta"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// actor is the id of the authenticated caller, 0 when anonymous.
func actor(r *http.Request) int64 {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		return id.UserID
	}
	return 0
}
