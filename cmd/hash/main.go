// Package main prints a bcrypt verifier for a login password. The gateway stores
// only verifiers, never plaintext, so this tool is used when provisioning
// auth.credentials entries in config.yaml.
//
//	go run ./cmd/hash 'correct horse battery staple'
//	echo -n 'correct horse battery staple' | go run ./cmd/hash
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/careline/careline/internal/auth"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	email := flag.String("email", "", "print a ready-to-paste credentials entry for this email")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("usage: hash [-cost N] [-email addr] <password>  (or pass the password on stdin)")
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(strings.TrimSpace(password)) < auth.MinPasswordLength {
		log.Fatalf("password must be at least %d characters long", auth.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(password)), *cost)
	if err != nil {
		log.Fatal(err)
	}

	if *email == "" {
		fmt.Println(string(hash))
		return
	}
	fmt.Printf("auth:\n  credentials:\n    - email: %q\n      password_hash: %q\n", auth.NormalizeEmail(*email), string(hash))
}
