package identity

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost keeps a hash around 250ms on current hardware,
// slow enough to blunt offline guessing without hurting login latency.
const DefaultBcryptCost = 12

// PasswordHasher hashes and checks account passwords with bcrypt.
// The cost is fixed at construction; existing hashes remain checkable
// if it ever changes because bcrypt embeds the cost in the hash.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher at DefaultBcryptCost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: DefaultBcryptCost}
}

// Hash derives a salted bcrypt hash for storage.
func (h *PasswordHasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches the stored hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
