// Package main is a development utility for generating a random password with
// its bcrypt hash pre-computed. It prints the raw password, the hash, and a
// ready-to-run SQL UPDATE statement so developers can quickly seed a usable
// login on a local database without running the bootstrap flow. Do not use
// generated passwords in production — set CFA_BOOTSTRAP_ADMIN_PASSWORD and let
// the server seed the account.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Generate random bytes
	randomBytes := make([]byte, 24)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	password := base64.RawURLEncoding.EncodeToString(randomBytes)

	// Hash with bcrypt
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Dev Password Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nPassword: %s\n", password)
	fmt.Printf("\nHash: %s\n", string(hashBytes))
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE users
SET password_hash = '%s'
WHERE email = 'admin@dev.local';
`, string(hashBytes))
	fmt.Println("\n==========================================================")
}
