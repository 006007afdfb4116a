package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jafarshop/shopsync/internal/security"
)

// Prints the bcrypt hash to put in ADMIN_API_KEY_HASH. The key is read from
// the first argument or, if absent, from stdin.
func main() {
	var key string
	if len(os.Args) > 1 {
		key = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "Failed to read key: %v\n", err)
			os.Exit(1)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		fmt.Fprintf(os.Stderr, "Usage: go run ./cmd/hash-admin-key <api-key>\n")
		os.Exit(1)
	}

	hash, err := security.HashAPIKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ADMIN_API_KEY_HASH=%s\n", hash)
}
