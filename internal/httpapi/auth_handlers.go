package httpapi

import (
	"net/http"
	"time"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/auth"
	"transconecta.io/internal/fleet"
	"transconecta.io/internal/otp"
	"transconecta.io/internal/permission"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token       string                  `json:"token,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	User        fleet.User              `json:"user"`
	Permissions permission.ModuleConfig `json:"permissions"`
	Sidebar     []string                `json:"sidebar"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type recoveryRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code,omitempty"`
	ResetToken  string `json:"reset_token,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

func (a *API) routeAuth() {
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.authed("GET /v1/auth/me", a.handleMe)
	a.authed("POST /v1/auth/logout", a.handleLogout)
	a.authed("POST /v1/auth/password", a.handleChangePassword)

	if a.recovery != nil {
		a.mux.HandleFunc("POST /v1/auth/recovery/request", a.handleRecoveryRequest)
		a.mux.HandleFunc("POST /v1/auth/recovery/verify", a.handleRecoveryVerify)
		a.mux.HandleFunc("POST /v1/auth/recovery/reset", a.handleRecoveryReset)
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := a.reg.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"email": otp.MaskEmail(req.Email),
			"code":  fleet.Code(err),
		})
		writeFailure(w, r, err)
		return
	}
	token, expiresAt, err := auth.GenerateToken(u.ID, u.RoleName, a.tokenTTL)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	resp, err := a.session(r, u)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	resp.Token = token
	resp.ExpiresAt = &expiresAt

	ctx := auth.ContextWithUser(r.Context(), u.ID, u.RoleName)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.reg.GetUser(r.Context(), actor(r))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	resp, err := a.session(r, u)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) session(r *http.Request, u fleet.User) (sessionResponse, error) {
	cfg, err := a.perms.ResolveModuleConfig(r.Context(), u.RoleName)
	if err != nil {
		return sessionResponse{}, err
	}
	return sessionResponse{
		User:        u,
		Permissions: cfg,
		Sidebar:     permission.SortedModules(cfg),
	}, nil
}

// handleLogout is acknowledged only: tokens are discarded client-side.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.ChangePassword(r.Context(), actor(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleRecoveryRequest(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	masked, err := a.recovery.Request(r.Context(), req.Email)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.recovery.requested", map[string]any{"email": masked})
	writeJSON(w, http.StatusOK, map[string]any{
		"email":      masked,
		"expires_in": int(otp.CodeTTL.Seconds()),
	})
}

func (a *API) handleRecoveryVerify(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	token, err := a.recovery.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.recovery.verified", map[string]any{"email": otp.MaskEmail(req.Email)})
	writeJSON(w, http.StatusOK, map[string]any{
		"reset_token": token,
		"expires_in":  int(otp.ResetTTL.Seconds()),
	})
}

func (a *API) handleRecoveryReset(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.recovery.Reset(r.Context(), req.Email, req.ResetToken, req.NewPassword); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.recovery.reset", map[string]any{"email": otp.MaskEmail(req.Email)})
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
}
