package identity

import "testing"

func TestPasswordHasher(t *testing.T) {
	// Minimum bcrypt cost keeps the test fast.
	hasher := &PasswordHasher{cost: 4}

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("Hash() returned the plaintext")
	}

	t.Run("correct password verifies", func(t *testing.T) {
		if !hasher.Verify("correct horse", hash) {
			t.Error("Verify() = false for the right password")
		}
	})

	t.Run("wrong password fails", func(t *testing.T) {
		if hasher.Verify("battery staple", hash) {
			t.Error("Verify() = true for the wrong password")
		}
	})

	t.Run("hashes are salted", func(t *testing.T) {
		again, err := hasher.Hash("correct horse")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if again == hash {
			t.Error("two hashes of the same password are identical")
		}
	})
}
