package auth

import (
	"errors"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

var hashCost atomic.Int64

func init() { hashCost.Store(int64(bcrypt.DefaultCost)) }

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(hashCost.Load()))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// SetHashCostForTests lowers the bcrypt cost and returns a restore func.
func SetHashCostForTests(cost int) func() {
	prev := hashCost.Swap(int64(cost))
	return func() { hashCost.Store(prev) }
}
