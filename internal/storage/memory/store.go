// Package memory is an in-process domain.Store. Sessions stage their writes
// and apply them atomically on SaveChanges.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cityinfo/internal/domain"
)

var (
	_ domain.Store      = (*Store)(nil)
	_ domain.CityWriter = (*Store)(nil)
)

type cityRow struct {
	ID          int64
	Name        string
	Description *string
}

type state struct {
	cities map[int64]cityRow
	pois   map[int64]domain.PointOfInterest
}

func (s state) clonePOIs() map[int64]domain.PointOfInterest {
	out := make(map[int64]domain.PointOfInterest, len(s.pois))
	for k, v := range s.pois {
		out[k] = clonePOI(v)
	}
	return out
}

type Store struct {
	mu sync.RWMutex
	st state
}

func New() *Store {
	return &Store{st: state{
		cities: map[int64]cityRow{},
		pois:   map[int64]domain.PointOfInterest{},
	}}
}

func (s *Store) Open(ctx context.Context) (domain.CityRepository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Session{store: s}, nil
}

// UpsertCity replaces the city row and its full set of points of interest.
func (s *Store) UpsertCity(ctx context.Context, c domain.City) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range c.PointsOfInterest {
		if owner, ok := s.st.pois[p.ID]; ok && owner.CityID != c.ID {
			return fmt.Errorf("point of interest %d belongs to city %d: %w", p.ID, owner.CityID, domain.ErrConflict)
		}
	}
	for id, p := range s.st.pois {
		if p.CityID == c.ID {
			delete(s.st.pois, id)
		}
	}
	s.st.cities[c.ID] = cityRow{ID: c.ID, Name: c.Name, Description: cloneStr(c.Description)}
	for _, p := range c.PointsOfInterest {
		p = clonePOI(p)
		p.CityID = c.ID
		s.st.pois[p.ID] = p
	}
	return nil
}

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

type change struct {
	kind opKind
	poi  domain.PointOfInterest
}

// apply mutates pois in place. Strict checks are what SaveChanges relies on
// to reject changes that lost a race with another session.
func (c change) apply(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest) error {
	switch c.kind {
	case opAdd:
		if _, ok := cities[c.poi.CityID]; !ok {
			return fmt.Errorf("add point of interest %d: city %d: %w", c.poi.ID, c.poi.CityID, domain.ErrNotFound)
		}
		if _, ok := pois[c.poi.ID]; ok {
			return fmt.Errorf("add point of interest %d: %w", c.poi.ID, domain.ErrConflict)
		}
	case opUpdate:
		cur, ok := pois[c.poi.ID]
		if !ok {
			return fmt.Errorf("update point of interest %d: %w", c.poi.ID, domain.ErrNotFound)
		}
		if cur.CityID != c.poi.CityID {
			return fmt.Errorf("update point of interest %d: city changed: %w", c.poi.ID, domain.ErrConflict)
		}
	case opDelete:
		if _, ok := pois[c.poi.ID]; !ok {
			return fmt.Errorf("delete point of interest %d: %w", c.poi.ID, domain.ErrNotFound)
		}
		delete(pois, c.poi.ID)
		return nil
	}
	pois[c.poi.ID] = clonePOI(c.poi)
	return nil
}

// Session is a unit of work. It is not safe for concurrent use.
type Session struct {
	store   *Store
	pending []change
	closed  bool
}

// view runs fn against the committed state overlaid with this session's
// staged changes. fn must not retain the maps.
func (s *Session) view(fn func(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest)) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if len(s.pending) == 0 {
		fn(s.store.st.cities, s.store.st.pois)
		return
	}
	pois := s.store.st.clonePOIs()
	for _, c := range s.pending {
		_ = c.apply(s.store.st.cities, pois) // conflicts surface on SaveChanges
	}
	fn(s.store.st.cities, pois)
}

func (s *Session) check(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("memory: session closed")
	}
	return ctx.Err()
}

func (s *Session) ListCities(ctx context.Context, q domain.CitiesQuery) ([]domain.City, domain.PaginationMetadata, error) {
	if err := s.check(ctx); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	if err := domain.CheckPage(q.PageNumber, q.PageSize); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	q = q.Normalized()

	var filtered []domain.City
	s.view(func(cities map[int64]cityRow, _ map[int64]domain.PointOfInterest) {
		for _, row := range cities {
			c := row.toCity()
			if q.Matches(c) {
				filtered = append(filtered, c)
			}
		}
	})
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Name != filtered[j].Name {
			return filtered[i].Name < filtered[j].Name
		}
		return filtered[i].ID < filtered[j].ID
	})
	return domain.Paginate(filtered, q.PageNumber, q.PageSize)
}

func (s *Session) GetCity(ctx context.Context, id int64, includePointsOfInterest bool) (*domain.City, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out *domain.City
	s.view(func(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		row, ok := cities[id]
		if !ok {
			return
		}
		c := row.toCity()
		if includePointsOfInterest {
			c.PointsOfInterest = childrenOf(pois, id)
		}
		out = &c
	})
	return out, nil
}

func (s *Session) CityExists(ctx context.Context, id int64) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var ok bool
	s.view(func(cities map[int64]cityRow, _ map[int64]domain.PointOfInterest) {
		_, ok = cities[id]
	})
	return ok, nil
}

func (s *Session) GetPointOfInterest(ctx context.Context, cityID, poiID int64) (*domain.PointOfInterest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out *domain.PointOfInterest
	s.view(func(_ map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		p, ok := pois[poiID]
		if !ok || p.CityID != cityID {
			return
		}
		p = clonePOI(p)
		out = &p
	})
	return out, nil
}

func (s *Session) ListPointsOfInterest(ctx context.Context, cityID int64) ([]domain.PointOfInterest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := []domain.PointOfInterest{}
	s.view(func(_ map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		out = append(out, childrenOf(pois, cityID)...)
	})
	return out, nil
}

func (s *Session) MaxPointOfInterestID(ctx context.Context) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var maxID int64
	s.view(func(_ map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		for id := range pois {
			if id > maxID {
				maxID = id
			}
		}
	})
	return maxID, nil
}

func (s *Session) AddPointOfInterest(ctx context.Context, cityID int64, p domain.PointOfInterest) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	p.CityID = cityID
	var err error
	s.view(func(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		err = change{kind: opAdd, poi: p}.apply(cities, clonedOne(pois, p.ID))
	})
	if err != nil {
		return err
	}
	s.pending = append(s.pending, change{kind: opAdd, poi: clonePOI(p)})
	return nil
}

func (s *Session) UpdatePointOfInterest(ctx context.Context, p domain.PointOfInterest) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var err error
	s.view(func(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		err = change{kind: opUpdate, poi: p}.apply(cities, clonedOne(pois, p.ID))
	})
	if err != nil {
		return err
	}
	s.pending = append(s.pending, change{kind: opUpdate, poi: clonePOI(p)})
	return nil
}

func (s *Session) DeletePointOfInterest(ctx context.Context, p domain.PointOfInterest) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var err error
	s.view(func(cities map[int64]cityRow, pois map[int64]domain.PointOfInterest) {
		err = change{kind: opDelete, poi: p}.apply(cities, clonedOne(pois, p.ID))
	})
	if err != nil {
		return err
	}
	s.pending = append(s.pending, change{kind: opDelete, poi: p})
	return nil
}

// SaveChanges applies every staged change or none of them.
func (s *Session) SaveChanges(ctx context.Context) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if len(s.pending) == 0 {
		return true, nil
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	pois := s.store.st.clonePOIs()
	for _, c := range s.pending {
		if err := c.apply(s.store.st.cities, pois); err != nil {
			s.pending = nil
			return false, fmt.Errorf("memory: save changes: %w", err)
		}
	}
	s.store.st.pois = pois
	s.pending = nil
	return true, nil
}

func (s *Session) Close() error {
	s.pending = nil
	s.closed = true
	return nil
}

// ---- helpers ----

func (r cityRow) toCity() domain.City {
	return domain.City{ID: r.ID, Name: r.Name, Description: cloneStr(r.Description)}
}

func childrenOf(pois map[int64]domain.PointOfInterest, cityID int64) []domain.PointOfInterest {
	var out []domain.PointOfInterest
	for _, p := range pois {
		if p.CityID == cityID {
			out = append(out, clonePOI(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// clonedOne returns a throwaway map holding at most the entry for id, so a
// dry-run apply cannot touch shared state.
func clonedOne(pois map[int64]domain.PointOfInterest, id int64) map[int64]domain.PointOfInterest {
	out := map[int64]domain.PointOfInterest{}
	if p, ok := pois[id]; ok {
		out[id] = p
	}
	return out
}

func clonePOI(p domain.PointOfInterest) domain.PointOfInterest {
	p.Description = cloneStr(p.Description)
	return p
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
