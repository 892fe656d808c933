package security

import "golang.org/x/crypto/bcrypt"

// bcrypt cost for stored password hashes
const hashCost = 12

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), hashCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// hash of an unguessable throwaway value, used to equalize login timing
// when no account matches the email
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fintrack-dummy-credential"), hashCost)

// CheckDummyPassword burns a bcrypt compare and always fails.
func CheckDummyPassword(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
