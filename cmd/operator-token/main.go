package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/stocksync-backend/pkg/auth"
	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

// operator-token prints a signed operator JWT for calling the back-office API.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "operator-token"})

	_ = godotenv.Load()

	operatorID := flag.String("operator", "", "operator id recorded as the token subject")
	role := flag.String("role", string(enums.OperatorRoleStaff), "operator role: admin|staff|system")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to STOCKSYNC_JWT_EXPIRATION_MINUTES")
	flag.Parse()

	// Only the JWT section is needed, so the DB and redis settings stay optional here.
	var jwtCfg config.JWTConfig
	if err := envconfig.Process(config.EnvPrefix, &jwtCfg); err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}

	parsedRole, err := enums.ParseOperatorRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role flag", err)
		os.Exit(2)
	}

	signer, err := auth.NewSigner(jwtCfg)
	if err != nil {
		logg.Error(ctx, "invalid jwt config", err)
		os.Exit(1)
	}
	token, err := signer.Mint(time.Now(), auth.OperatorTokenPayload{
		OperatorID: *operatorID,
		Role:       parsedRole,
		TTL:        *ttl,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint operator token", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
