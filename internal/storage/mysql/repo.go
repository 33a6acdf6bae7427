package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	mysqldrv "github.com/go-sql-driver/mysql"

	"cityinfo/internal/domain"
)

var (
	_ domain.Store      = (*Store)(nil)
	_ domain.CityWriter = (*Store)(nil)
)

// MySQL server error numbers.
const (
	errDupEntry     = 1062
	errNoReferenced = 1452
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// mapErr turns constraint violations into domain errors.
func mapErr(err error) error {
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return fmt.Errorf("%w: %s", domain.ErrConflict, me.Message)
		case errNoReferenced:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, me.Message)
		}
	}
	return err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Open(ctx context.Context) (domain.CityRepository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Session{db: s.db}, nil
}

// UpsertCity replaces the city row and its full set of points of interest in
// one transaction.
func (s *Store) UpsertCity(ctx context.Context, c domain.City) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertCitySQL, c.ID, c.Name, valStr(c.Description)); err != nil {
		return mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, deleteCityChildrenSQL, c.ID); err != nil {
		return err
	}
	for _, p := range c.PointsOfInterest {
		if _, err := tx.ExecContext(ctx, insertPointOfInterestSQL, p.ID, c.ID, p.Name, valStr(p.Description)); err != nil {
			return fmt.Errorf("point of interest %d: %w", p.ID, mapErr(err))
		}
	}
	return tx.Commit()
}

// Session is one unit of work. The first write opens a transaction; reads go
// through it from then on, so staged changes are visible to the session and
// to nobody else until SaveChanges commits.
type Session struct {
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

func (s *Session) check(ctx context.Context) error {
	if s.closed {
		return errors.New("mysql: session closed")
	}
	return ctx.Err()
}

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Session) writer(ctx context.Context) (querier, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("mysql: begin: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// citiesFilter builds the WHERE clause shared by the page and count queries.
func citiesFilter(q domain.CitiesQuery) sq.And {
	where := sq.And{}
	if q.Name != "" {
		where = append(where, sq.Eq{"name": q.Name})
	}
	if q.SearchQuery != "" {
		pat := "%" + escapeLike(q.SearchQuery) + "%"
		where = append(where, sq.Or{
			sq.Like{"name": pat},
			sq.Like{"description": pat},
		})
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (s *Session) ListCities(ctx context.Context, q domain.CitiesQuery) ([]domain.City, domain.PaginationMetadata, error) {
	if err := s.check(ctx); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	if err := domain.CheckPage(q.PageNumber, q.PageSize); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	q = q.Normalized()
	where := citiesFilter(q)

	count := sq.Select("COUNT(*)").From("cities")
	page := sq.Select("id", "name", "description").From("cities")
	if len(where) > 0 {
		count = count.Where(where)
		page = page.Where(where)
	}

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	var total int
	if err := s.q().QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	meta := domain.NewPaginationMetadata(total, q.PageSize, q.PageNumber)

	pageSQL, pageArgs, err := page.
		OrderBy("name", "id").
		Limit(uint64(q.PageSize)).
		Offset(uint64(domain.Offset(q.PageNumber, q.PageSize))).
		ToSql()
	if err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	rows, err := s.q().QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	defer rows.Close()

	out := []domain.City{}
	for rows.Next() {
		var c domain.City
		var desc sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &desc); err != nil {
			return nil, domain.PaginationMetadata{}, err
		}
		c.Description = strPtr(desc)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PaginationMetadata{}, err
	}
	return out, meta, nil
}

func (s *Session) GetCity(ctx context.Context, id int64, includePointsOfInterest bool) (*domain.City, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var c domain.City
	var desc sql.NullString
	if err := s.q().QueryRowContext(ctx, getCitySQL, id).Scan(&c.ID, &c.Name, &desc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Description = strPtr(desc)
	if includePointsOfInterest {
		pois, err := s.ListPointsOfInterest(ctx, id)
		if err != nil {
			return nil, err
		}
		c.PointsOfInterest = pois
	}
	return &c, nil
}

func (s *Session) CityExists(ctx context.Context, id int64) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var ok bool
	if err := s.q().QueryRowContext(ctx, cityExistsSQL, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Session) GetPointOfInterest(ctx context.Context, cityID, poiID int64) (*domain.PointOfInterest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var p domain.PointOfInterest
	var desc sql.NullString
	if err := s.q().QueryRowContext(ctx, getPointOfInterestSQL, poiID, cityID).Scan(&p.ID, &p.CityID, &p.Name, &desc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Description = strPtr(desc)
	return &p, nil
}

func (s *Session) ListPointsOfInterest(ctx context.Context, cityID int64) ([]domain.PointOfInterest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q().QueryContext(ctx, listPointsOfInterestSQL, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PointOfInterest{}
	for rows.Next() {
		var p domain.PointOfInterest
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.CityID, &p.Name, &desc); err != nil {
			return nil, err
		}
		p.Description = strPtr(desc)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Session) MaxPointOfInterestID(ctx context.Context) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var maxID int64
	if err := s.q().QueryRowContext(ctx, maxPointOfInterestIDSQL).Scan(&maxID); err != nil {
		return 0, err
	}
	return maxID, nil
}

func (s *Session) AddPointOfInterest(ctx context.Context, cityID int64, p domain.PointOfInterest) error {
	w, err := s.writer(ctx)
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx, insertPointOfInterestSQL, p.ID, cityID, p.Name, valStr(p.Description)); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Session) UpdatePointOfInterest(ctx context.Context, p domain.PointOfInterest) error {
	w, err := s.writer(ctx)
	if err != nil {
		return err
	}
	res, err := w.ExecContext(ctx, updatePointOfInterestSQL, p.Name, valStr(p.Description), p.ID, p.CityID)
	if err != nil {
		return err
	}
	// Affected rows are also 0 when nothing changed.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var ok bool
		if err := w.QueryRowContext(ctx, pointOfInterestExistsSQL, p.ID, p.CityID).Scan(&ok); err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *Session) DeletePointOfInterest(ctx context.Context, p domain.PointOfInterest) error {
	w, err := s.writer(ctx)
	if err != nil {
		return err
	}
	res, err := w.ExecContext(ctx, deletePointOfInterestSQL, p.ID, p.CityID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveChanges commits the open transaction, if any.
func (s *Session) SaveChanges(ctx context.Context) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if s.tx == nil {
		return true, nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("mysql: commit: %w", mapErr(err))
	}
	return true, nil
}

// Close rolls back anything not yet committed.
func (s *Session) Close() error {
	s.closed = true
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
