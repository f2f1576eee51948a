package main

import (
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// devToken signs a development token with the configured secret.
func devToken(secret []byte, issuer, subject string, roles []string, scope string) string {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(12 * time.Hour).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	if scope != "" {
		claims["scope"] = scope
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		log.Fatal("Failed to sign development token:", err)
	}
	return token
}

// printSampleTokens prints ready-to-use bearer tokens for manual testing.
func printSampleTokens(secret []byte, issuer string) {
	fmt.Println("Sample bearer tokens (valid 12h):")
	fmt.Printf("  sales:     %s\n", devToken(secret, issuer, "sally", []string{"sales"}, ""))
	fmt.Printf("  admin:     %s\n", devToken(secret, issuer, "adam", []string{"admin"}, ""))
	fmt.Printf("  canceller: %s\n", devToken(secret, issuer, "carla", nil, "orders.cancel"))
	fmt.Println()
}
