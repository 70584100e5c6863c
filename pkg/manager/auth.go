package manager

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned by RequireAdmin when the supplied token
// does not match the configured admin token.
var ErrUnauthorized = errors.New("manager: unauthorized")

// RequireAdmin checks token against the configured bcrypt admin token hash,
// for callers to run before a destructive operation (deleteCorpus,
// importCorpus, importRelANNIS); DeleteCorpus and ImportCorpus do not call
// it themselves. An empty
// hash disables the gate entirely, matching spec.md's silence on
// authentication for the read-only surface -- this only tightens the
// explicitly-destructive subset.
func (m *Manager) RequireAdmin(token string) error {
	hash := m.cfg.Auth.AdminTokenHash
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// HashAdminToken bcrypt-hashes token for storage in AuthConfig.AdminTokenHash.
func HashAdminToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
