package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/internal/utils"
	"github.com/tourlink/marketplace-backend/pkg/jwt"
)

func main() {
	secret := flag.String("secret", "", "sign a development token with this JWT_SECRET instead of generating a new secret")
	role := flag.String("role", "USER", "role claim for the development token: USER, AGENCY or ADMIN")
	userID := flag.String("user", "", "user id claim for the development token (random when empty)")
	ttl := flag.Duration("ttl", 24*time.Hour, "development token lifetime")
	flag.Parse()

	if *secret != "" {
		mintToken(*secret, *role, *userID, *ttl)
		return
	}

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator")
	fmt.Println("===========================================")
	fmt.Println()

	jwtSecret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}

// mintToken prints a bearer token for local testing of the API
func mintToken(secret, rawRole, rawUserID string, ttl time.Duration) {
	role, ok := models.ParseRole(rawRole)
	if !ok {
		log.Fatalf("Unknown role %q", rawRole)
	}

	id := uuid.New()
	if rawUserID != "" {
		parsed, err := uuid.Parse(rawUserID)
		if err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
		id = parsed
	}

	token, err := jwt.NewService(secret, ttl).GenerateAccessToken(id, role)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("user_id=%s role=%s\n", id, role)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
