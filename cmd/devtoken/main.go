// Command devtoken prints an identity token for local development, signed
// with IDENTITY_SECRET.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"collab/api/internal/auth"
	"collab/api/internal/config"
)

func main() {
	tenantID := flag.String("tenant", "tenant-dev", "tenant id carried by the token")
	userID := flag.String("user", "", "user id carried by the token")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("devtoken: -user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	token, err := auth.IssueIdentityToken([]byte(cfg.IdentitySecret), *tenantID, *userID, *ttl)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(token)
}
