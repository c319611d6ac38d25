package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// AccountStore holds login credentials for configured accounts. Plaintext
// passwords are discarded at Add time; only an argon2id digest with a
// per-account salt is retained.
type AccountStore struct {
	accounts map[string]account
}

type account struct {
	salt   []byte
	digest []byte
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: map[string]account{}}
}

// Add registers an account under the given subject, replacing any previous
// credential for it.
func (s *AccountStore) Add(subject, password string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	s.accounts[subject] = account{
		salt:   salt,
		digest: deriveDigest([]byte(password), salt),
	}
	return nil
}

// Verify reports whether the password matches the credential stored for the
// subject. Unknown subjects always fail.
func (s *AccountStore) Verify(subject, password string) bool {
	acct, ok := s.accounts[subject]
	if !ok {
		return false
	}

	digest := deriveDigest([]byte(password), acct.salt)
	return subtle.ConstantTimeCompare(digest, acct.digest) == 1
}

func deriveDigest(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}
