package local

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for new hashes
var DefaultCost = 12

var (
	ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
	ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
					WithCode(goerrors.CodeUnauthorized)
)

// HashPassword will generate a password hash
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
