package helpers

import "golang.org/x/crypto/bcrypt"

// PasswordCost is deliberately above bcrypt.DefaultCost; hashing a
// password should take tens of milliseconds.
const PasswordCost = 12

// HashPassword hashes the plain text password using bcrypt. The salt
// and cost are embedded in the result, so verification is self-describing.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CompareHashAndPassword compares a bcrypt hash with a plain password.
// A mismatch is false, never an error.
func CompareHashAndPassword(hash string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
