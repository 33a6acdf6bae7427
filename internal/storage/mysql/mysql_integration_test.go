//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"cityinfo/internal/domain"
	mysqlstore "cityinfo/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string { return &s }

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

// startMySQL runs an isolated MySQL and returns a migrated connection.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=cityinfo",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC",
		"root", hostPort, "cityinfo")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func seed(t *testing.T, st *mysqlstore.Store) {
	t.Helper()
	ctx := context.Background()
	cities := []domain.City{
		{ID: 1, Name: "New York City", Description: pstr("The one with that big park."), PointsOfInterest: []domain.PointOfInterest{
			{ID: 1, Name: "Central Park", Description: pstr("The most visited urban park in the United States.")},
			{ID: 2, Name: "Empire State Building", Description: pstr("A 102-story skyscraper.")},
		}},
		{ID: 2, Name: "Antwerp", Description: pstr("The one with the cathedral that was never really finished."), PointsOfInterest: []domain.PointOfInterest{
			{ID: 3, Name: "Cathedral of Our Lady"},
		}},
		{ID: 3, Name: "Paris", Description: pstr("The one with the big tower, and a bridge or two.")},
		{ID: 4, Name: "Paris 2", Description: pstr("100%_real")},
	}
	for _, c := range cities {
		if err := st.UpsertCity(ctx, c); err != nil {
			t.Fatalf("UpsertCity %d: %v", c.ID, err)
		}
	}
}

func open(t *testing.T, st domain.Store) domain.CityRepository {
	t.Helper()
	r, err := st.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func names(cs []domain.City) string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return strings.Join(out, ",")
}

// ---------- the tests ----------
func TestStore_MySQL(t *testing.T) {
	db := startMySQL(t)
	st := mysqlstore.New(db)
	seed(t, st)
	ctx := context.Background()

	t.Run("ListCities orders and filters", func(t *testing.T) {
		r := open(t, st)

		all, meta, err := r.ListCities(ctx, domain.CitiesQuery{PageNumber: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("ListCities: %v", err)
		}
		if got := names(all); got != "Antwerp,New York City,Paris,Paris 2" {
			t.Fatalf("unexpected order: %s", got)
		}
		if meta.TotalItemCount != 4 || meta.TotalPageCount != 1 {
			t.Fatalf("unexpected metadata: %+v", meta)
		}

		exact, _, err := r.ListCities(ctx, domain.CitiesQuery{Name: " Paris ", PageNumber: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("ListCities: %v", err)
		}
		if got := names(exact); got != "Paris" {
			t.Fatalf("exact name filter: %s", got)
		}

		search, _, err := r.ListCities(ctx, domain.CitiesQuery{SearchQuery: "bridge", PageNumber: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("ListCities: %v", err)
		}
		if got := names(search); got != "Paris" {
			t.Fatalf("description search: %s", got)
		}

		wild, _, err := r.ListCities(ctx, domain.CitiesQuery{SearchQuery: "%_", PageNumber: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("ListCities: %v", err)
		}
		if got := names(wild); got != "Paris 2" {
			t.Fatalf("wildcards must match literally: %s", got)
		}

		page2, meta, err := r.ListCities(ctx, domain.CitiesQuery{PageNumber: 2, PageSize: 3})
		if err != nil {
			t.Fatalf("ListCities: %v", err)
		}
		if got := names(page2); got != "Paris 2" || meta.TotalPageCount != 2 || meta.CurrentPage != 2 {
			t.Fatalf("second page: %s %+v", got, meta)
		}

		beyond, _, err := r.ListCities(ctx, domain.CitiesQuery{PageNumber: 9, PageSize: 3})
		if err != nil || len(beyond) != 0 {
			t.Fatalf("beyond range: %v %v", beyond, err)
		}
	})

	t.Run("child lookups are scoped to the city", func(t *testing.T) {
		r := open(t, st)

		c, err := r.GetCity(ctx, 1, true)
		if err != nil || c == nil || len(c.PointsOfInterest) != 2 {
			t.Fatalf("GetCity: %+v %v", c, err)
		}
		p, err := r.GetPointOfInterest(ctx, 2, 1)
		if err != nil || p != nil {
			t.Fatalf("expected absent child, got %+v %v", p, err)
		}
		missing, err := r.GetCity(ctx, 99, false)
		if err != nil || missing != nil {
			t.Fatalf("expected absent city, got %+v %v", missing, err)
		}
		maxID, err := r.MaxPointOfInterestID(ctx)
		if err != nil || maxID != 3 {
			t.Fatalf("MaxPointOfInterestID: %d %v", maxID, err)
		}
	})

	t.Run("writes are visible only after SaveChanges", func(t *testing.T) {
		r := open(t, st)
		if err := r.AddPointOfInterest(ctx, 3, domain.PointOfInterest{ID: 4, Name: "Eiffel Tower"}); err != nil {
			t.Fatalf("AddPointOfInterest: %v", err)
		}
		if p, _ := r.GetPointOfInterest(ctx, 3, 4); p == nil {
			t.Fatalf("session must read its own writes")
		}
		if p, _ := open(t, st).GetPointOfInterest(ctx, 3, 4); p != nil {
			t.Fatalf("uncommitted write leaked: %+v", p)
		}
		if ok, err := r.SaveChanges(ctx); err != nil || !ok {
			t.Fatalf("SaveChanges: %v %v", ok, err)
		}
		if p, _ := open(t, st).GetPointOfInterest(ctx, 3, 4); p == nil || p.Name != "Eiffel Tower" {
			t.Fatalf("committed write missing: %+v", p)
		}
	})

	t.Run("Close discards staged writes", func(t *testing.T) {
		r, err := st.Open(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := r.DeletePointOfInterest(ctx, domain.PointOfInterest{ID: 1, CityID: 1}); err != nil {
			t.Fatalf("DeletePointOfInterest: %v", err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if p, _ := open(t, st).GetPointOfInterest(ctx, 1, 1); p == nil {
			t.Fatalf("rolled back delete must keep the row")
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		r := open(t, st)
		if err := r.UpdatePointOfInterest(ctx, domain.PointOfInterest{ID: 2, CityID: 1, Name: "Empire State"}); err != nil {
			t.Fatalf("UpdatePointOfInterest: %v", err)
		}
		if err := r.DeletePointOfInterest(ctx, domain.PointOfInterest{ID: 3, CityID: 2}); err != nil {
			t.Fatalf("DeletePointOfInterest: %v", err)
		}
		if err := r.DeletePointOfInterest(ctx, domain.PointOfInterest{ID: 3, CityID: 2}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := r.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}

		after := open(t, st)
		p, _ := after.GetPointOfInterest(ctx, 1, 2)
		if p == nil || p.Name != "Empire State" || p.Description != nil {
			t.Fatalf("update not applied: %+v", p)
		}
		kids, _ := after.ListPointsOfInterest(ctx, 2)
		if len(kids) != 0 {
			t.Fatalf("delete not applied: %+v", kids)
		}
	})

	t.Run("constraint violations map to domain errors", func(t *testing.T) {
		r := open(t, st)
		if err := r.AddPointOfInterest(ctx, 99, domain.PointOfInterest{ID: 100, Name: "Ghost"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("missing city: %v", err)
		}
		if err := r.AddPointOfInterest(ctx, 3, domain.PointOfInterest{ID: 1, Name: "Dup"}); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("duplicate id: %v", err)
		}
		err := st.UpsertCity(ctx, domain.City{ID: 3, Name: "Paris", PointsOfInterest: []domain.PointOfInterest{{ID: 1, Name: "Stolen"}}})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("seed stealing a child: %v", err)
		}
	})
}
