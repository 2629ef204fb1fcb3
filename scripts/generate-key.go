// Package main is a development utility that prints a fresh APP_SECRET. The
// secret keys the audit digests and the sealed session identities, so rotating
// it makes existing digests unsearchable and signs out every Redis session.
//
//	go run scripts/generate-key.go
package main

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/careline/careline/internal/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	secret := hex.EncodeToString(key)

	fmt.Println("==========================================================")
	fmt.Println("APP_SECRET Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nAPP_SECRET=%s\n\n", secret)
	fmt.Println("Store it in your secret manager; never commit it.")
	fmt.Println("==========================================================")
}
