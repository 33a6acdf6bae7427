package app

import (
	"context"
	"errors"
	"fmt"

	"cityinfo/internal/domain"
)

// SeedService is the admin path that creates cities. The core never writes
// city rows itself.
type SeedService struct {
	writer domain.CityWriter
	cache  domain.Cache
}

func NewSeedService(w domain.CityWriter, cache domain.Cache) *SeedService {
	return &SeedService{writer: w, cache: cache}
}

// SeedCity maps and upserts one raw record, then evicts the cached city so
// readers pick up the new row.
func (s *SeedService) SeedCity(ctx context.Context, raw map[string]any) (domain.City, error) {
	c, err := MapSeedCity(raw)
	if err != nil {
		return domain.City{}, err
	}
	if err := s.writer.UpsertCity(ctx, c); err != nil {
		return domain.City{}, fmt.Errorf("upsert city %d: %w", c.ID, err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, CityKey(c.ID))
	}
	return c, nil
}

// SeedRecords seeds records one after another. It keeps going past bad
// records and returns how many were stored along with the joined failures.
func (s *SeedService) SeedRecords(ctx context.Context, records []map[string]any) (int, error) {
	var (
		seeded int
		errs   []error
	)
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return seeded, errors.Join(append(errs, err)...)
		}
		if _, err := s.SeedCity(ctx, raw); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i+1, err))
			continue
		}
		seeded++
	}
	return seeded, errors.Join(errs...)
}
