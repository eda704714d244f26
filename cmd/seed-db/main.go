// Command seed-db loads development fixtures: programs, purchases and an API
// key for the internal surface.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/promo-engine/internal/storage/postgres"
)

type programJSON struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	IsFree    bool     `json:"isFree"`
	MentorIDs []string `json:"mentorIds"`
}

type purchaseJSON struct {
	UserID    string `json:"userId"`
	ProgramID string `json:"programId"`
	Status    string `json:"status"`
}

type seedJSON struct {
	Programs  []programJSON  `json:"programs"`
	Purchases []purchaseJSON `json:"purchases"`
}

func main() {
	var (
		databaseURL  string
		seedFile     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/fixtures.json", "path to fixtures JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrapf(err, "read %s", seedFile)
	}

	var seed seedJSON
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrapf(err, "parse %s", seedFile)
	}

	if err := seedPrograms(ctx, pool, seed); err != nil {
		return err
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return err
	}
	return nil
}

func seedPrograms(ctx context.Context, pool *pgxpool.Pool, seed seedJSON) error {
	for _, p := range seed.Programs {
		_, err := pool.Exec(ctx, `INSERT INTO programs (id, title, is_free, mentor_ids)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				is_free = EXCLUDED.is_free,
				mentor_ids = EXCLUDED.mentor_ids`,
			p.ID, p.Title, p.IsFree, p.MentorIDs,
		)
		if err != nil {
			return errors.Wrapf(err, "seed program %s", p.ID)
		}
	}
	slog.Info("programs seeded", slog.Int("count", len(seed.Programs)))

	for _, p := range seed.Purchases {
		_, err := pool.Exec(ctx, `INSERT INTO purchases (id, user_id, program_id, status)
			VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), p.UserID, p.ProgramID, p.Status,
		)
		if err != nil {
			return errors.Wrapf(err, "seed purchase for %s", p.UserID)
		}
	}
	slog.Info("purchases seeded", slog.Int("count", len(seed.Purchases)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	hash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, active)
		VALUES ($1, $2, 'dev', TRUE)
		ON CONFLICT (key_hash) DO NOTHING`,
		uuid.New().String(), hash,
	)
	if err != nil {
		return errors.Wrap(err, "seed api key")
	}

	slog.Info("api key seeded")
	return nil
}
