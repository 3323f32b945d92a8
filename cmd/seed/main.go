package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/auth"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/config"
	"github.com/avirag26/scholaro-api/internal/obs"
)

type seedUser struct {
	Name  string
	Email string
	Role  string
}

type seedCourse struct {
	Tutor string
	Title string
	Price decimal.Decimal
	Offer decimal.Decimal
}

var (
	users = []seedUser{
		{Name: "Asha Student", Email: "student@scholaro.dev", Role: common.RoleStudent},
		{Name: "Ravi Tutor", Email: "ravi@scholaro.dev", Role: common.RoleTutor},
		{Name: "Meera Tutor", Email: "meera@scholaro.dev", Role: common.RoleTutor},
	}
	courses = []seedCourse{
		{Tutor: "ravi@scholaro.dev", Title: "Go for Backend Engineers", Price: decimal.NewFromInt(750), Offer: decimal.NewFromInt(20)},
		{Tutor: "ravi@scholaro.dev", Title: "PostgreSQL in Practice", Price: decimal.NewFromInt(400), Offer: decimal.Zero},
		{Tutor: "meera@scholaro.dev", Title: "Designing Data Pipelines", Price: decimal.NewFromInt(400), Offer: decimal.Zero},
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "seed").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	ids := map[string]uuid.UUID{}
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, u := range users {
			var id uuid.UUID
			if err := tx.QueryRow(ctx, `INSERT INTO users (name, email, role) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
RETURNING id`, u.Name, u.Email, u.Role).Scan(&id); err != nil {
				return fmt.Errorf("seed user %s: %w", u.Email, err)
			}
			ids[u.Email] = id
		}
		for _, c := range courses {
			if _, err := tx.Exec(ctx, `INSERT INTO courses (tutor_id, title, price, offer_percentage)
SELECT $1, $2, $3, $4 WHERE NOT EXISTS (SELECT 1 FROM courses WHERE tutor_id = $1 AND title = $2)`,
				ids[c.Tutor], c.Title, c.Price, c.Offer); err != nil {
				return fmt.Errorf("seed course %q: %w", c.Title, err)
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO coupons (code, title, tutor_id, kind, value, min_purchase)
VALUES ('MEERA200', 'Launch offer', $1, 'fixed', 200, 300) ON CONFLICT (code) DO NOTHING`, ids["meera@scholaro.dev"])
		return err
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}

	printTokens(cfg, ids, logger)
	logger.Info().Msg("seeding completed")
}

// printTokens writes a development bearer token per seeded user.
func printTokens(cfg *config.Config, ids map[string]uuid.UUID, logger zerolog.Logger) {
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	for _, u := range users {
		token, err := verifier.Issue(ids[u.Email].String(), u.Role, 24*time.Hour)
		if err != nil {
			logger.Error().Err(err).Str("email", u.Email).Msg("issue token")
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", u.Role, u.Email, token)
	}
}
