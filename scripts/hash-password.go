package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Prints the bcrypt hash to put in ADMIN_KEY_HASH. With a second argument,
// checks that key against an existing hash instead.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-password.go <admin-key> [existing-hash]\n")
		os.Exit(1)
	}

	key := os.Args[1]
	if len(os.Args) > 2 {
		if err := bcrypt.CompareHashAndPassword([]byte(os.Args[2]), []byte(key)); err != nil {
			fmt.Fprintln(os.Stderr, "key does not match hash")
			os.Exit(1)
		}
		fmt.Println("ok")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), 12)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}
