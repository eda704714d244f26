// Command code-ingest bulk-imports staff-access codes from legacy gzip
// exports (one code token per line). A bloom filter suppresses the bulk of
// cross-file duplicates cheaply; the unique constraint on promo_codes.code is
// the exact backstop.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gatherly/promo-engine/internal/domain/promo"
	"github.com/gatherly/promo-engine/internal/storage/postgres"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.000001

	minCodeLen = 6
	maxCodeLen = 12

	insertBatchSize = 5_000
	progressEvery   = 1_000_000
)

const insertStaffCodeSQL = `INSERT INTO promo_codes
	(id, code, type, discount_percent, is_general, is_active, expires_at, created_at)
	VALUES ($1, $2, $3, $4, TRUE, TRUE, $5, $6)
	ON CONFLICT (code) DO NOTHING`

func main() {
	var (
		databaseURL     string
		discountPercent int
		expiryDays      int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&discountPercent, "discount-percent", 100, "percent discount granted by imported codes")
	flag.IntVar(&expiryDays, "expiry-days", 0, "days until imported codes expire (0 = never)")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more .gz exports")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if discountPercent < 0 || discountPercent > 100 {
		slog.Error("discount percent must be in [0, 100]", slog.Int("got", discountPercent))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, discountPercent, expiryDays); err != nil {
		slog.Error("code ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, discountPercent, expiryDays int) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Producers scan files concurrently; a single consumer owns the bloom
	// filter and the insert batches.
	codes := make(chan string, 4096)
	g, ctx := errgroup.WithContext(ctx)

	scanners, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		scanners.Go(scanFile(ctx, f, codes))
	}
	g.Go(func() error {
		defer close(codes)
		return scanners.Wait()
	})

	var inserted int64
	g.Go(func() error {
		n, err := insertCodes(ctx, pool, codes, discountPercent, expiryDays)
		inserted = n
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("codes inserted", slog.Int64("count", inserted))
	return nil
}

// scanFile streams one gzip export and sends normalized, well-formed codes.
func scanFile(ctx context.Context, path string, out chan<- string) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip reader %s", path)
		}
		defer gz.Close()

		var lines int64
		sc := bufio.NewScanner(gz)
		for sc.Scan() {
			lines++
			if lines%progressEvery == 0 {
				slog.Info("scanning", slog.String("file", path), slog.Int64("lines", lines))
			}

			code := strings.ToUpper(strings.TrimSpace(sc.Text()))
			if !wellFormedCode(code) {
				continue
			}

			select {
			case out <- code:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return errors.Wrapf(sc.Err(), "scan %s", path)
	}
}

// insertCodes dedupes incoming codes through the bloom filter and writes them
// in batches. A bloom false positive drops a code; at the configured FPR that
// is rarer than operator error, and re-running the import recovers it.
func insertCodes(ctx context.Context, pool *pgxpool.Pool, codes <-chan string, discountPercent, expiryDays int) (int64, error) {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	percent := decimal.NewFromInt(int64(discountPercent))

	now := time.Now()
	var expiresAt *time.Time
	if expiryDays > 0 {
		t := now.AddDate(0, 0, expiryDays)
		expiresAt = &t
	}

	var (
		batch    pgx.Batch
		inserted int64
	)
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		br := pool.SendBatch(ctx, &batch)
		defer br.Close()
		for range batch.Len() {
			tag, err := br.Exec()
			if err != nil {
				return errors.Wrap(err, "insert batch")
			}
			inserted += tag.RowsAffected()
		}
		batch = pgx.Batch{}
		return nil
	}

	for code := range codes {
		if seen.TestAndAddString(code) {
			continue
		}

		batch.Queue(insertStaffCodeSQL,
			uuid.New().String(), code, string(promo.TypeStaffAccess),
			percent, expiresAt, now,
		)
		if batch.Len() >= insertBatchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func wellFormedCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
