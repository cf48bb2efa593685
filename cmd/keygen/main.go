package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/adscript/backend/pkg/utils/keygen"
)

// keygen prints fresh shared secrets for the relay's config.
func main() {
	size := flag.Int("bytes", keygen.DefaultTokenBytes, "random bytes per secret")
	flag.Parse()

	callbackToken, err := keygen.GenerateToken(*size)
	if err != nil {
		log.Fatalf("Failed to generate callback token: %v", err)
	}
	adminKey, err := keygen.GenerateToken(*size)
	if err != nil {
		log.Fatalf("Failed to generate admin key: %v", err)
	}

	fmt.Println("auth:")
	fmt.Printf("  callback_token: %q # fingerprint %s\n", callbackToken, keygen.Fingerprint(callbackToken))
	fmt.Printf("  admin_api_key: %q # fingerprint %s\n", adminKey, keygen.Fingerprint(adminKey))
	fmt.Println()
	fmt.Println("Give the callback token to the workflow as its Bearer token.")
}
