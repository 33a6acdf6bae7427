package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"cityinfo/internal/domain"
)

// CityQueryService serves read paths. City rows are never written by the
// point-of-interest paths, so only child-free results are cached. Listings
// are not invalidated by the seeder and live until their TTL runs out.
type CityQueryService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewCityQueryService(st domain.Store, c domain.Cache, ttl time.Duration) *CityQueryService {
	return &CityQueryService{store: st, cache: c, cacheTTL: ttl}
}

func (s *CityQueryService) ListCities(ctx context.Context, q domain.CitiesQuery) (domain.CitiesPage, error) {
	q = q.Normalized()
	if err := domain.CheckPage(q.PageNumber, q.PageSize); err != nil {
		return domain.CitiesPage{}, err
	}
	key := citiesKey(q)
	var out domain.CitiesPage
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	var items []domain.City
	var meta domain.PaginationMetadata
	err := s.withRepo(ctx, func(r domain.CityRepository) (err error) {
		items, meta, err = r.ListCities(ctx, q)
		return err
	})
	if err != nil {
		return domain.CitiesPage{}, err
	}
	out = domain.CitiesPage{Items: items, Metadata: meta}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// GetCity returns domain.ErrNotFound when the city does not exist.
func (s *CityQueryService) GetCity(ctx context.Context, id int64, includePointsOfInterest bool) (domain.City, error) {
	key := CityKey(id)
	var c domain.City
	if !includePointsOfInterest && s.cacheGet(ctx, key, &c) {
		return c, nil
	}

	var found *domain.City
	err := s.withRepo(ctx, func(r domain.CityRepository) (err error) {
		found, err = r.GetCity(ctx, id, includePointsOfInterest)
		return err
	})
	if err != nil {
		return domain.City{}, err
	}
	if found == nil {
		return domain.City{}, domain.ErrNotFound
	}
	if !includePointsOfInterest {
		s.cacheSet(ctx, key, *found)
	}
	return *found, nil
}

func (s *CityQueryService) CityExists(ctx context.Context, id int64) (bool, error) {
	var c domain.City
	if s.cacheGet(ctx, CityKey(id), &c) {
		return true, nil
	}
	var ok bool
	err := s.withRepo(ctx, func(r domain.CityRepository) (err error) {
		ok, err = r.CityExists(ctx, id)
		return err
	})
	return ok, err
}

// ListPointsOfInterest returns domain.ErrNotFound for a missing city so callers
// can tell it apart from a city without children.
func (s *CityQueryService) ListPointsOfInterest(ctx context.Context, cityID int64) ([]domain.PointOfInterest, error) {
	var out []domain.PointOfInterest
	err := s.withRepo(ctx, func(r domain.CityRepository) error {
		ok, err := r.CityExists(ctx, cityID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		out, err = r.ListPointsOfInterest(ctx, cityID)
		return err
	})
	return out, err
}

func (s *CityQueryService) GetPointOfInterest(ctx context.Context, cityID, poiID int64) (domain.PointOfInterest, error) {
	var found *domain.PointOfInterest
	err := s.withRepo(ctx, func(r domain.CityRepository) (err error) {
		found, err = r.GetPointOfInterest(ctx, cityID, poiID)
		return err
	})
	if err != nil {
		return domain.PointOfInterest{}, err
	}
	if found == nil {
		return domain.PointOfInterest{}, domain.ErrNotFound
	}
	return *found, nil
}

func (s *CityQueryService) withRepo(ctx context.Context, fn func(domain.CityRepository) error) error {
	r, err := s.store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer r.Close()
	return fn(r)
}

func (s *CityQueryService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	return ok && err == nil
}

func (s *CityQueryService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}

func CityKey(id int64) string { return fmt.Sprintf("city:%d", id) }

func citiesKey(q domain.CitiesQuery) string {
	sum := sha1.Sum([]byte(q.Name + "\x00" + q.SearchQuery))
	return fmt.Sprintf("cities:%s:%d:%d", hex.EncodeToString(sum[:8]), q.PageNumber, q.PageSize)
}
