package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityinfo/internal/domain"
	"cityinfo/internal/shared"
)

func TestOpenStore_MemorySeedsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 1, "name": "New York City", "pointsOfInterest": [{"id": 1, "name": "Central Park"}]},
		{"id": 2, "name": "Antwerp"}
	]`), 0o600))

	st := openStore(context.Background(), shared.Config{StoreDriver: "memory", SeedFile: path})
	repo, err := st.Open(context.Background())
	require.NoError(t, err)
	defer repo.Close()

	cities, meta, err := repo.ListCities(context.Background(), domain.CitiesQuery{PageNumber: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalItemCount)
	assert.Equal(t, "Antwerp", cities[0].Name)

	p, err := repo.GetPointOfInterest(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Central Park", p.Name)
}

func TestOpenStore_MemoryWithoutSeedFileStartsEmpty(t *testing.T) {
	st := openStore(context.Background(), shared.Config{StoreDriver: "memory", SeedFile: filepath.Join(t.TempDir(), "missing.json")})
	repo, err := st.Open(context.Background())
	require.NoError(t, err)
	defer repo.Close()

	ok, err := repo.CityExists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
