package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"transconecta.io/internal/auth"
	"transconecta.io/internal/fleet"
)

const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type UserInput struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	RoleID             int64  `json:"role_id"`
	Status             string `json:"status"`
	MustChangePassword bool   `json:"must_change_password"`
}

type UserPatch struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	RoleID *int64  `json:"role_id"`
	Status *string `json:"status"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", fleet.ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("%w: email is not valid", fleet.ErrValidation)
	}
	if err := maxLen("email", email, 150); err != nil {
		return "", err
	}
	return email, nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", fleet.ErrValidation, MinPasswordLength)
	}
	return nil
}

func (r *Registry) CreateUser(ctx context.Context, in UserInput) (fleet.User, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return fleet.User{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return fleet.User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return fleet.User{}, err
	}
	if err := positiveID("role_id", in.RoleID); err != nil {
		return fleet.User{}, err
	}
	status, err := lifecycleStatus(in.Status)
	if err != nil {
		return fleet.User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return fleet.User{}, err
	}
	var out fleet.User
	err = r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Role(ctx, in.RoleID); err != nil {
			return err
		}
		taken, err := tx.EmailTaken(ctx, email, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email %s already registered", fleet.ErrConflict, email)
		}
		out, err = tx.InsertUser(ctx, fleet.User{
			Name:               name,
			Email:              email,
			PasswordHash:       hash,
			RoleID:             in.RoleID,
			Status:             status,
			MustChangePassword: in.MustChangePassword,
		})
		return err
	})
	return out, err
}

func (r *Registry) ListUsers(ctx context.Context) ([]fleet.User, error) {
	var out []fleet.User
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Users(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetUser(ctx context.Context, id int64) (fleet.User, error) {
	var out fleet.User
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.User(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) UserByEmail(ctx context.Context, email string) (fleet.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return fleet.User{}, err
	}
	var out fleet.User
	err = r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.UserByEmail(ctx, email)
		return err
	})
	return out, err
}

func (r *Registry) UpdateUser(ctx context.Context, id int64, p UserPatch) (fleet.User, error) {
	var out fleet.User
	err := r.update(ctx, func(tx fleet.Tx) error {
		u, err := tx.User(ctx, id)
		if err != nil {
			return err
		}
		if err := applyString(&u.Name, p.Name, "name", true); err != nil {
			return err
		}
		if p.Email != nil {
			if u.Email, err = normalizeEmail(*p.Email); err != nil {
				return err
			}
			taken, err := tx.EmailTaken(ctx, u.Email, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: email %s already registered", fleet.ErrConflict, u.Email)
			}
		}
		if p.RoleID != nil {
			if _, err := tx.Role(ctx, *p.RoleID); err != nil {
				return err
			}
			u.RoleID = *p.RoleID
		}
		if p.Status != nil {
			if u.Status, err = lifecycleStatus(*p.Status); err != nil {
				return err
			}
		}
		out, err = tx.SaveUser(ctx, u)
		return err
	})
	return out, err
}

func (r *Registry) SetUserStatus(ctx context.Context, id int64, status string) (fleet.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if err := oneOf("status", status, fleet.StatusActive, fleet.StatusInactive); err != nil {
		return fleet.User{}, err
	}
	var out fleet.User
	err := r.update(ctx, func(tx fleet.Tx) error {
		if err := tx.SetUserStatus(ctx, id, status); err != nil {
			return err
		}
		var err error
		out, err = tx.User(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) DeleteUser(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		return tx.DeleteUser(ctx, id)
	})
}

// Authenticate resolves credentials: ErrNotFound for an unknown email,
// ErrUnauthorized for a wrong password, ErrForbidden for an inactive user.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (fleet.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return fleet.User{}, fmt.Errorf("%w: email and password are required", fleet.ErrValidation)
	}
	var u fleet.User
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		u, err = tx.UserByEmail(ctx, email)
		return err
	})
	if err != nil {
		return fleet.User{}, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return fleet.User{}, fmt.Errorf("%w: invalid credentials", fleet.ErrUnauthorized)
	}
	if u.Status != fleet.StatusActive {
		return fleet.User{}, fmt.Errorf("%w: user is inactive", fleet.ErrForbidden)
	}
	return u, nil
}

// ChangePassword rotates a user's password after verifying the current one.
func (r *Registry) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", fleet.ErrValidation)
	}
	if current == next {
		return fmt.Errorf("%w: new password must differ from the current one", fleet.ErrValidation)
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return r.update(ctx, func(tx fleet.Tx) error {
		u, err := tx.User(ctx, userID)
		if err != nil {
			return err
		}
		if err := auth.VerifyPassword(u.PasswordHash, current); err != nil {
			return fmt.Errorf("%w: current password is incorrect", fleet.ErrUnauthorized)
		}
		return r.storePassword(ctx, tx, u, hash)
	})
}

// ResetPassword sets a new password without the current one; callers must
// have proven ownership of the account some other way.
func (r *Registry) ResetPassword(ctx context.Context, email, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return r.update(ctx, func(tx fleet.Tx) error {
		u, err := tx.UserByEmail(ctx, email)
		if err != nil {
			return err
		}
		return r.storePassword(ctx, tx, u, hash)
	})
}

func (r *Registry) storePassword(ctx context.Context, tx fleet.Tx, u fleet.User, hash string) error {
	if err := tx.RecordPasswordChange(ctx, fleet.PasswordChange{UserID: u.ID, OldHash: u.PasswordHash, NewHash: hash}); err != nil {
		return err
	}
	u.PasswordHash = hash
	u.MustChangePassword = false
	_, err := tx.SaveUser(ctx, u)
	return err
}

// EnsureAdmin creates the administrator role and user when the email is not
// registered yet. It reports whether a user was created.
func (r *Registry) EnsureAdmin(ctx context.Context, name, email, password, roleName string) (fleet.User, bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return fleet.User{}, false, err
	}
	if err := validatePassword(password); err != nil {
		return fleet.User{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrador"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fleet.User{}, false, err
	}
	var (
		out     fleet.User
		created bool
	)
	err = r.update(ctx, func(tx fleet.Tx) error {
		existing, err := tx.UserByEmail(ctx, email)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, fleet.ErrNotFound) {
			return err
		}
		role, err := ensureRole(ctx, tx, roleName)
		if err != nil {
			return err
		}
		out, err = tx.InsertUser(ctx, fleet.User{
			Name:               strings.TrimSpace(name),
			Email:              email,
			PasswordHash:       hash,
			RoleID:             role.ID,
			Status:             fleet.StatusActive,
			MustChangePassword: true,
		})
		created = err == nil
		return err
	})
	return out, created, err
}
