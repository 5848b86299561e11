// ABOUTME: TOML fixture loading for the roastery directory
// ABOUTME: Decodes a fixture file and inserts entries, skipping existing names

package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/cortadohq/cortado/internal/store"
)

// Entry is one roastery in a fixture file.
type Entry struct {
	Name        string `toml:"name"`
	City        string `toml:"city"`
	Website     string `toml:"website"`
	Description string `toml:"description"`
}

// File is a decoded fixture file.
type File struct {
	Roasteries []Entry `toml:"roasteries"`
}

// Result reports what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Load reads and decodes a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}

	var file File
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parsing fixture file: %w", err)
	}

	for i, entry := range file.Roasteries {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("roasteries[%d]: name is required", i)
		}
	}

	return &file, nil
}

// Apply inserts the fixture's roasteries into the store. Entries whose name
// already exists are skipped rather than treated as errors, so a fixture can
// be applied repeatedly.
func Apply(ctx context.Context, st store.Store, file *File, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "seed")

	var result Result
	now := time.Now()

	for _, entry := range file.Roasteries {
		roastery := &store.Roastery{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(entry.Name),
			City:        strings.TrimSpace(entry.City),
			Website:     strings.TrimSpace(entry.Website),
			Description: strings.TrimSpace(entry.Description),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := st.CreateRoastery(ctx, roastery)
		switch {
		case errors.Is(err, store.ErrRoasteryExists):
			logger.Debug("roastery already exists, skipping", "name", roastery.Name)
			result.Skipped++
		case err != nil:
			return result, fmt.Errorf("creating roastery %q: %w", roastery.Name, err)
		default:
			result.Created++
		}
	}

	logger.Info("seed applied", "created", result.Created, "skipped", result.Skipped)
	return result, nil
}
