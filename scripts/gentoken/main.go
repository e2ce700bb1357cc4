// Command gentoken prints a recruiter bearer token for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go-screening-backend/pkg/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "dev-recruiter", "subject (user id)")
	email := flag.String("email", "recruiter@localhost", "email claim")
	jobs := flag.String("jobs", auth.AllJobs, "comma separated job ids, or *")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	tok, err := auth.Issue(secret, auth.RecruiterClaims{
		Email:            *email,
		Role:             "recruiter",
		Jobs:             strings.Split(*jobs, ","),
		RegisteredClaims: jwt.RegisteredClaims{Subject: *sub},
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
