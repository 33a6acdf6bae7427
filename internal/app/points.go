package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cityinfo/internal/domain"
)

type notification struct{ subject, body string }

// notifyTimeout bounds delivery of the notifications of one commit.
const notifyTimeout = 30 * time.Second

// PointOfInterestService manages the points of interest of one city within a
// single unit of work. Nothing is persisted until SaveChanges.
type PointOfInterestService struct {
	repo     domain.CityRepository
	notifier domain.Notifier
	merger   PatchMerger
	outbox   []notification
	inflight sync.WaitGroup
}

func NewPointOfInterestService(r domain.CityRepository, n domain.Notifier) *PointOfInterestService {
	return &PointOfInterestService{repo: r, notifier: n}
}

// Create assigns the next id from the whole store, not from the parent city.
func (s *PointOfInterestService) Create(ctx context.Context, cityID int64, f domain.PointOfInterestFields) (*domain.PointOfInterest, error) {
	if err := validateFields(f); err != nil {
		return nil, err
	}
	ok, err := s.repo.CityExists(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("check city %d: %w", cityID, err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	maxID, err := s.repo.MaxPointOfInterestID(ctx)
	if err != nil {
		return nil, fmt.Errorf("next point of interest id: %w", err)
	}
	p := domain.PointOfInterest{ID: maxID + 1, CityID: cityID}
	p.Apply(f)

	if err := s.repo.AddPointOfInterest(ctx, cityID, p); err != nil {
		return nil, fmt.Errorf("add point of interest to city %d: %w", cityID, err)
	}
	return &p, nil
}

// Replace overwrites name and description; identity and parent never change.
func (s *PointOfInterestService) Replace(ctx context.Context, cityID, poiID int64, f domain.PointOfInterestFields) error {
	if err := validateFields(f); err != nil {
		return err
	}
	p, err := s.resolve(ctx, cityID, poiID)
	if err != nil {
		return err
	}
	p.Apply(f)
	return s.update(ctx, *p)
}

func (s *PointOfInterestService) Patch(ctx context.Context, cityID, poiID int64, ops []PatchOperation) error {
	p, err := s.resolve(ctx, cityID, poiID)
	if err != nil {
		return err
	}
	if err := s.merger.Merge(p, ops); err != nil {
		return err
	}
	return s.update(ctx, *p)
}

// Delete stages the removal. The notification goes out from SaveChanges once
// the removal is committed.
func (s *PointOfInterestService) Delete(ctx context.Context, cityID, poiID int64) error {
	p, err := s.resolve(ctx, cityID, poiID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePointOfInterest(ctx, *p); err != nil {
		return fmt.Errorf("delete point of interest %d: %w", poiID, err)
	}
	s.outbox = append(s.outbox, notification{
		subject: "Point of interest deleted.",
		body:    fmt.Sprintf("Point of interest %s with id %d was deleted.", p.Name, p.ID),
	})
	return nil
}

// SaveChanges commits the unit of work, then hands queued notifications to
// the notifier in the background, detached from ctx. Delivery never delays
// or undoes the commit; failures are logged.
func (s *PointOfInterestService) SaveChanges(ctx context.Context) (bool, error) {
	ok, err := s.repo.SaveChanges(ctx)
	if err != nil {
		s.outbox = nil
		return false, fmt.Errorf("save changes: %w", err)
	}
	if !ok {
		s.outbox = nil
		return false, nil
	}

	pending := s.outbox
	s.outbox = nil
	if s.notifier == nil || len(pending) == 0 {
		return true, nil
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		for _, n := range pending {
			if err := s.notifier.Notify(nctx, n.subject, n.body); err != nil {
				log.Warn().Err(err).Str("subject", n.subject).Msg("notification failed")
			}
		}
	}()
	return true, nil
}

// Wait blocks until notifications from earlier SaveChanges calls have been
// delivered or have failed.
func (s *PointOfInterestService) Wait() { s.inflight.Wait() }

func (s *PointOfInterestService) resolve(ctx context.Context, cityID, poiID int64) (*domain.PointOfInterest, error) {
	ok, err := s.repo.CityExists(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("check city %d: %w", cityID, err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, err := s.repo.GetPointOfInterest(ctx, cityID, poiID)
	if err != nil {
		return nil, fmt.Errorf("get point of interest %d: %w", poiID, err)
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *PointOfInterestService) update(ctx context.Context, p domain.PointOfInterest) error {
	if err := s.repo.UpdatePointOfInterest(ctx, p); err != nil {
		return fmt.Errorf("update point of interest %d: %w", p.ID, err)
	}
	return nil
}
