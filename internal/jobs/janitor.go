package jobs

import (
	"context"
	"fmt"
	"time"

	"CimplrBankImport/internal/artifact"
	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/logger"

	"github.com/robfig/cron/v3"
)

// JanitorConfig holds configuration for temp upload cleanup.
type JanitorConfig struct {
	Schedule string
	MaxAge   time.Duration
	TimeZone string
}

// TempLister is the part of the artifact backend the janitor needs.
type TempLister interface {
	List(ctx context.Context, prefix string) ([]artifact.Object, error)
	Delete(ctx context.Context, key string) error
}

func NewDefaultJanitorConfig() *JanitorConfig {
	return &JanitorConfig{
		Schedule: config.DefaultJanitorSchedule,
		MaxAge:   config.DefaultTempMaxAge,
		TimeZone: "UTC",
	}
}

// RunJanitor registers the temp upload sweep on c.
func RunJanitor(c *cron.Cron, cfg *JanitorConfig, store TempLister) (cron.EntryID, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultJanitorSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = config.DefaultTempMaxAge
	}
	id, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := SweepTempUploads(ctx, store, cfg.MaxAge, time.Now()); err != nil {
			log := logger.Get()
			log.Error().Err(err).Msg("temp upload sweep failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("unable to schedule temp upload janitor: %w", err)
	}
	return id, nil
}

// SweepTempUploads deletes temp uploads last modified before now-maxAge. An
// ingest moves its temp file within seconds, so anything older was abandoned
// by a crashed or cancelled request. It returns the number removed.
func SweepTempUploads(ctx context.Context, store TempLister, maxAge time.Duration, now time.Time) (int, error) {
	objs, err := store.List(ctx, bankimport.TempPrefix)
	if err != nil {
		return 0, err
	}
	log := logger.Get()
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, o := range objs {
		if !o.ModTime.Before(cutoff) {
			continue
		}
		if err := store.Delete(ctx, o.Key); err != nil {
			log.Warn().Err(err).Str("key", o.Key).Msg("could not delete stale temp upload")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("stale temp uploads deleted")
	}
	return removed, nil
}
