package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bookingsync/internal/database"
	"bookingsync/internal/models"
	"bookingsync/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// BookingsFile is the seed format: a list of bookings to queue.
type BookingsFile struct {
	Bookings []models.Booking `yaml:"bookings"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads bookings from YAML into the sqlite offline cache. The daemon
// restores them into its queue on the next start.
func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		bookingsPath = flag.String("bookings", "configs/bookings.yaml", "path to bookings.yaml")
		dbPath       = flag.String("db", "./data/bookingsync.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*bookingsPath)
	if err != nil {
		return fmt.Errorf("read bookings: %w", err)
	}
	var file BookingsFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse bookings: %w", err)
	}
	if len(file.Bookings) == 0 {
		return fmt.Errorf("no bookings in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cleanup := service.NewCleanupService(database.NewOfflineCache(db), &logger)
	now := time.Now().UTC()

	queued := 0
	skipped := 0
	for i := range file.Bookings {
		b := &file.Bookings[i]
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		op, err := models.NewBookingOperation(b)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("skip booking")
			skipped++
			continue
		}
		// keep file order on restore
		op.EnqueuedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := cleanup.Remember(ctx, op); err != nil {
			return fmt.Errorf("queue %s: %w", op.NaturalKey, err)
		}
		queued++
	}

	logger.Info().Int("queued", queued).Int("skipped", skipped).Msg("bookings imported into offline cache")
	return nil
}
