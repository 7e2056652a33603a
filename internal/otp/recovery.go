package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"transconecta.io/internal/fleet"
	"transconecta.io/internal/ids"
	"transconecta.io/internal/obs"
)

const (
	CodeTTL     = 10 * time.Minute
	ResetTTL    = 15 * time.Minute
	MaxAttempts = 3

	// Stored entries outlive their logical expiry so an expired code can be
	// reported as expired rather than missing.
	storeGrace  = time.Minute
	sendTimeout = 30 * time.Second
)

// Users is the slice of the user registry recovery needs.
type Users interface {
	UserByEmail(ctx context.Context, email string) (fleet.User, error)
	ResetPassword(ctx context.Context, email, next string) error
}

// WrongCodeError reports a failed verification that still has attempts left.
type WrongCodeError struct {
	Remaining int
}

func (e *WrongCodeError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts remaining", e.Remaining)
}

func (e *WrongCodeError) Unwrap() error { return fleet.ErrValidation }

type codeRecord struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

type resetRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service runs the request, verify and reset steps of password recovery.
type Service struct {
	store  Store
	users  Users
	mailer Mailer
	now    func() time.Time
	code   func() (string, error)

	// dispatch runs mail delivery; it defaults to a new goroutine.
	dispatch func(func())
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator replaces the random six digit generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.code = fn
		}
	}
}

// WithDispatcher controls how mail delivery is scheduled.
func WithDispatcher(fn func(func())) Option {
	return func(s *Service) {
		if fn != nil {
			s.dispatch = fn
		}
	}
}

func NewService(store Store, users Users, mailer Mailer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("otp store is required")
	}
	if users == nil {
		return nil, errors.New("user registry is required")
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	s := &Service{
		store:    store,
		users:    users,
		mailer:   mailer,
		now:      time.Now,
		code:     randomCode,
		dispatch: func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func codeKey(email string) string  { return "otp:code:" + email }
func resetKey(email string) string { return "otp:reset:" + email }

func normalize(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", fleet.ErrValidation)
	}
	return email, nil
}

// Request issues a new code for the account and mails it. The returned
// string is the masked address the code was sent to.
func (s *Service) Request(ctx context.Context, email string) (string, error) {
	email, err := normalize(email)
	if err != nil {
		return "", err
	}
	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	code, err := s.code()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	rec := codeRecord{Code: code, ExpiresAt: s.now().Add(CodeTTL)}
	if err := s.put(ctx, codeKey(email), rec, CodeTTL+storeGrace); err != nil {
		return "", err
	}

	subject, body := recoveryMessage(user.Name, code)
	to := user.Email
	s.dispatch(func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := s.mailer.Send(sendCtx, to, subject, body); err != nil {
			obs.Warn("recovery mail failed", map[string]any{"to": MaskEmail(to), "error": err.Error()})
		}
	})
	return MaskEmail(email), nil
}

// Verify checks a code and, on success, exchanges it for a reset token.
func (s *Service) Verify(ctx context.Context, email, code string) (string, error) {
	email, err := normalize(email)
	if err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: code is required", fleet.ErrValidation)
	}

	var rec codeRecord
	if err := s.get(ctx, codeKey(email), &rec); err != nil {
		if errors.Is(err, ErrMissing) {
			return "", fmt.Errorf("%w: no active code for this email", fleet.ErrValidation)
		}
		return "", err
	}
	now := s.now()
	if !now.Before(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, codeKey(email))
		return "", fmt.Errorf("%w: code expired, request a new one", fleet.ErrValidation)
	}
	if rec.Attempts >= MaxAttempts {
		_ = s.store.Delete(ctx, codeKey(email))
		return "", fmt.Errorf("%w: too many failed attempts, request a new code", fleet.ErrValidation)
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		rec.Attempts++
		if err := s.put(ctx, codeKey(email), rec, rec.ExpiresAt.Sub(now)+storeGrace); err != nil {
			return "", err
		}
		return "", &WrongCodeError{Remaining: MaxAttempts - rec.Attempts}
	}

	token, err := ids.Secret()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	reset := resetRecord{Token: token, ExpiresAt: now.Add(ResetTTL)}
	if err := s.put(ctx, resetKey(email), reset, ResetTTL+storeGrace); err != nil {
		return "", err
	}
	if err := s.store.Delete(ctx, codeKey(email)); err != nil {
		obs.Warn("otp delete failed", map[string]any{"error": err.Error()})
	}
	return token, nil
}

// Reset sets a new password using a token obtained from Verify.
func (s *Service) Reset(ctx context.Context, email, token, next string) error {
	email, err := normalize(email)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" || next == "" {
		return fmt.Errorf("%w: token and new password are required", fleet.ErrValidation)
	}
	if len([]rune(next)) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", fleet.ErrValidation)
	}

	var rec resetRecord
	if err := s.get(ctx, resetKey(email), &rec); err != nil {
		if errors.Is(err, ErrMissing) {
			return fmt.Errorf("%w: invalid or unverified token", fleet.ErrValidation)
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(rec.Token), []byte(token)) != 1 {
		return fmt.Errorf("%w: incorrect token", fleet.ErrValidation)
	}
	if !s.now().Before(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, resetKey(email))
		return fmt.Errorf("%w: token expired, request a new code", fleet.ErrValidation)
	}
	if err := s.users.ResetPassword(ctx, email, next); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, resetKey(email)); err != nil {
		obs.Warn("reset token delete failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *Service) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, b, ttl)
}

func (s *Service) get(ctx context.Context, key string, v any) error {
	b, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// MaskEmail keeps the first three characters of the local part and the
// domain. Shorter local parts keep only their first character.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := []rune(email[:at]), email[at:]
	keep := 3
	if len(local) < keep {
		keep = 1
	}
	return string(local[:keep]) + "***" + domain
}

func recoveryMessage(name, code string) (string, string) {
	subject := "Código de Recuperación de Contraseña - TransConecta"
	body := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #333;">
<h2>Hola %s,</h2>
<p>Recibimos una solicitud para restablecer la contraseña de tu cuenta.</p>
<p>Tu código de verificación es:</p>
<p style="font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #e3473c;">%s</p>
<p>Este código expirará en 10 minutos. No compartas este código con nadie.</p>
<p>Si no solicitaste este cambio, ignora este mensaje.</p>
</body></html>`, html.EscapeString(name), code)
	return subject, body
}
