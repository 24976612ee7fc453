package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
)

// Generates operator secrets: a publishable client key value for insertion
// into publishable_client_keys, or a hex AES-256 key for ENCRYPTION_KEY.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/gen-keys.go <client-key|encryption-key>\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "client-key":
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("pck_" + base64.RawURLEncoding.EncodeToString(buf))
	case "encryption-key":
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(buf))
	default:
		fmt.Fprintf(os.Stderr, "Unknown key type %q\n", os.Args[1])
		os.Exit(1)
	}
}
