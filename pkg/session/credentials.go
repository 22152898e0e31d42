package session

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
)

// bcryptPrefix covers every bcrypt variant ($2a$, $2b$, $2y$).
const bcryptPrefix = "$2"

// HashPassword returns the bcrypt hash accepted in credential config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errx.Wrap(ErrHashPassword, err)
	}
	return string(hash), nil
}

// IsHashed reports whether a configured password is a bcrypt hash.
func IsHashed(password string) bool {
	return strings.HasPrefix(password, bcryptPrefix)
}

// Matches reports whether username and password satisfy cred. Plaintext
// passwords and usernames are compared in constant time.
func Matches(cred api.Credential, username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(cred.Username), []byte(username)) == 1

	var passOK bool
	if IsHashed(cred.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(cred.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) == 1
	}
	return userOK && passOK && cred.Username != ""
}
