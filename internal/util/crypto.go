package util

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// RandomCode returns a string of length n drawn uniformly from alphabet
// using crypto/rand.
func RandomCode(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	code := make([]byte, n)
	for i := range code {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[idx.Int64()]
	}
	return string(code), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func MaskID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:8] + "-****"
}
