package domain

import "context"

// Store is the process-wide persistence substrate. It is constructed once at
// start-up and handed to every component that needs it.
type Store interface {
	// Open starts a unit of work. Callers must Close it; uncommitted changes are discarded.
	Open(ctx context.Context) (CityRepository, error)
}

// CityRepository is one unit of work over cities and their points of interest.
// Lookups report absence as a nil result with a nil error.
type CityRepository interface {
	// Read paths
	ListCities(ctx context.Context, q CitiesQuery) ([]City, PaginationMetadata, error)
	GetCity(ctx context.Context, id int64, includePointsOfInterest bool) (*City, error)
	CityExists(ctx context.Context, id int64) (bool, error)
	GetPointOfInterest(ctx context.Context, cityID, poiID int64) (*PointOfInterest, error)
	ListPointsOfInterest(ctx context.Context, cityID int64) ([]PointOfInterest, error)
	MaxPointOfInterestID(ctx context.Context) (int64, error)

	// Write paths (staged until SaveChanges)
	AddPointOfInterest(ctx context.Context, cityID int64, p PointOfInterest) error
	UpdatePointOfInterest(ctx context.Context, p PointOfInterest) error
	DeletePointOfInterest(ctx context.Context, p PointOfInterest) error

	SaveChanges(ctx context.Context) (bool, error)
	Close() error
}

// CityWriter is the seed/admin path. It replaces a city and its whole set of
// points of interest.
type CityWriter interface {
	UpsertCity(ctx context.Context, c City) error
}

type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// CitiesPage is the cacheable result of a listing.
type CitiesPage struct {
	Items    []City             `json:"items"`
	Metadata PaginationMetadata `json:"metadata"`
}
