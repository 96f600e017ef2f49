// Command devtoken mints a bearer token signed with JWT_SECRET for local requests.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"eventadmission/config"
	"eventadmission/internal/adapters/auth"
	"eventadmission/internal/domain"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token subject")
	email := flag.String("email", "", "email claim")
	admin := flag.Bool("admin", false, "grant the admin role")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var roles []string
	if *admin {
		roles = append(roles, domain.RoleAdmin)
	}
	token, err := auth.NewJWTIssuer(cfg.JWTSecret).Issue(*userID, *email, roles, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
