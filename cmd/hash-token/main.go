// CLI tool to mint an API bearer token and print the bcrypt hash for API_TOKEN_HASH.
// Usage: go run ./cmd/hash-token [token]
// With no argument a random token is generated.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	token := uuid.New().String()
	if len(os.Args) > 1 {
		token = strings.TrimSpace(os.Args[1])
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "token must not be empty")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token:  %s\n", token)
	fmt.Printf("\nAdd to .env:\n  API_TOKEN_HASH=%s\n", hash)
}
