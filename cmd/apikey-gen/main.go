package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dhecash.backend/internal/config"
	"dhecash.backend/internal/domain/entities"
	"dhecash.backend/internal/infrastructure/repositories"
	"dhecash.backend/pkg/crypto"
	"dhecash.backend/pkg/logger"
	"dhecash.backend/pkg/reference"
)

// Mints a fresh API key pair for an existing merchant. The secret is printed
// once and stored only as a bcrypt hash.
func main() {
	merchantFlag := flag.String("merchant", "", "merchant id (uuid)")
	flag.Parse()

	merchantID, err := uuid.Parse(*merchantFlag)
	if err != nil {
		log.Fatalf("invalid -merchant: %v", err)
	}

	cfg := config.Load()
	logger.Init(cfg.Server.Env)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.Database.URL(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	merchantRepo := repositories.NewMerchantRepository(db)
	apiKeyRepo := repositories.NewApiKeyRepository(db)

	merchant, err := merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		log.Fatalf("merchant lookup failed: %v", err)
	}

	keyID, secret, err := reference.NewAPIKeyPair(merchant.Environment)
	if err != nil {
		log.Fatalf("failed to generate key pair: %v", err)
	}
	hash, err := crypto.HashSecret(secret)
	if err != nil {
		log.Fatalf("failed to hash secret: %v", err)
	}

	key := &entities.ApiKey{
		ID:         uuid.New(),
		MerchantID: merchant.ID,
		KeyID:      keyID,
		SecretHash: hash,
		IsActive:   true,
	}
	if err := apiKeyRepo.Create(ctx, key); err != nil {
		log.Fatalf("failed to store key: %v", err)
	}

	fmt.Printf("merchant:   %s (%s)\n", merchant.BusinessName, merchant.ID)
	fmt.Printf("key id:     %s\n", keyID)
	fmt.Printf("api secret: %s\n", secret)
	fmt.Println("store the secret now; it cannot be recovered")
}
