package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityinfo/internal/app"
	"cityinfo/internal/domain"
	"cityinfo/internal/storage/memory"
)

// ---- fakes ----

type sentMail struct{ subject, body string }

type recordingNotifier struct {
	sent []sentMail
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, subject, body string) error {
	n.sent = append(n.sent, sentMail{subject, body})
	return n.err
}

// failingCommit wraps a real session but refuses to persist.
type failingCommit struct {
	domain.CityRepository
}

// blockingNotifier holds every delivery until released or cancelled.
type blockingNotifier struct {
	release chan struct{}
	done    chan error
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
}

func (n *blockingNotifier) Notify(ctx context.Context, subject, body string) error {
	select {
	case <-n.release:
		n.done <- nil
		return nil
	case <-ctx.Done():
		n.done <- ctx.Err()
		return ctx.Err()
	}
}

func (f failingCommit) SaveChanges(ctx context.Context) (bool, error) {
	return false, errors.New("disk on fire")
}

func pstr(s string) *string { return &s }

func newStore(t *testing.T, cities ...domain.City) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, c := range cities {
		require.NoError(t, st.UpsertCity(context.Background(), c))
	}
	return st
}

func sampleStore(t *testing.T) *memory.Store {
	return newStore(t,
		domain.City{ID: 1, Name: "New York City", PointsOfInterest: []domain.PointOfInterest{
			{ID: 1, Name: "Central Park", Description: pstr("The most visited urban park in the United States.")},
			{ID: 2, Name: "Empire State Building"},
		}},
		domain.City{ID: 2, Name: "Antwerp", PointsOfInterest: []domain.PointOfInterest{
			{ID: 7, Name: "Cathedral of Our Lady"},
		}},
		domain.City{ID: 3, Name: "Paris"},
	)
}

func session(t *testing.T, st domain.Store) domain.CityRepository {
	t.Helper()
	r, err := st.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func getPOI(t *testing.T, st domain.Store, cityID, poiID int64) *domain.PointOfInterest {
	t.Helper()
	p, err := session(t, st).GetPointOfInterest(context.Background(), cityID, poiID)
	require.NoError(t, err)
	return p
}

// ---- tests ----

func TestCreate_FirstIDInEmptyStoreIsOne(t *testing.T) {
	st := newStore(t, domain.City{ID: 1, Name: "Paris"})
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, 1, domain.PointOfInterestFields{Name: "Eiffel Tower"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, int64(1), p.CityID)
}

func TestCreate_IDIsGlobalMaxPlusOne(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, 3, domain.PointOfInterestFields{Name: "Eiffel Tower", Description: pstr("Tall.")})
	require.NoError(t, err)
	assert.Equal(t, int64(8), p.ID, "max id 7 lives in another city")

	p2, err := svc.Create(ctx, 1, domain.PointOfInterestFields{Name: "Brooklyn Bridge"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), p2.ID, "staged creates are visible to the next id computation")
}

func TestCreate_NotCommittedUntilSaveChanges(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, 3, domain.PointOfInterestFields{Name: "Louvre"})
	require.NoError(t, err)
	assert.Nil(t, getPOI(t, st, 3, p.ID))

	ok, err := svc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	got := getPOI(t, st, 3, p.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Louvre", got.Name)
}

func TestCreate_MissingCity(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)

	_, err := svc.Create(context.Background(), 99, domain.PointOfInterestFields{Name: "Ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_InvalidFields(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)

	_, err := svc.Create(context.Background(), 1, domain.PointOfInterestFields{Name: ""})
	ve, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, domain.Semantic, ve.Kind)
}

func TestReplace_UpdatesNameAndDescription(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	require.NoError(t, svc.Replace(ctx, 1, 2, domain.PointOfInterestFields{Name: "Empire State", Description: pstr("Art Deco.")}))
	_, err := svc.SaveChanges(ctx)
	require.NoError(t, err)

	got := getPOI(t, st, 1, 2)
	assert.Equal(t, "Empire State", got.Name)
	assert.Equal(t, "Art Deco.", *got.Description)
	assert.Equal(t, int64(1), got.CityID)
}

func TestReplace_MissingChildLeavesStoreUnchanged(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	err := svc.Replace(ctx, 1, 42, domain.PointOfInterestFields{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Replace(ctx, 2, 1, domain.PointOfInterestFields{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound, "child of another city")

	err = svc.Replace(ctx, 99, 1, domain.PointOfInterestFields{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound, "missing city")

	_, err = svc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Central Park", getPOI(t, st, 1, 1).Name)
}

func TestPatch_Success(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	ops, err := app.DecodePatch([]byte(`[{"op":"replace","path":"/name","value":"Central Park NYC"}]`))
	require.NoError(t, err)
	require.NoError(t, svc.Patch(ctx, 1, 1, ops))
	_, err = svc.SaveChanges(ctx)
	require.NoError(t, err)

	got := getPOI(t, st, 1, 1)
	assert.Equal(t, "Central Park NYC", got.Name)
	assert.Equal(t, "The most visited urban park in the United States.", *got.Description)
}

func TestPatch_StructuralFailureLeavesStoredEntityUnchanged(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	_, err := app.DecodePatch([]byte(`[{"op":"replace","path":"/population","value":"8M"}]`))
	ve, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, domain.Structural, ve.Kind)

	err = svc.Patch(ctx, 1, 1, []app.PatchOperation{app.ReplaceName{Value: "x"}, nil})
	ve, ok = domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, domain.Structural, ve.Kind)

	_, err = svc.SaveChanges(ctx)
	require.NoError(t, err)
	got := getPOI(t, st, 1, 1)
	assert.Equal(t, "Central Park", got.Name)
	assert.Equal(t, "The most visited urban park in the United States.", *got.Description)
}

func TestPatch_SemanticFailureLeavesStoredEntityUnchanged(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)
	ctx := context.Background()

	err := svc.Patch(ctx, 1, 1, []app.PatchOperation{app.ReplaceName{Value: ""}})
	ve, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, domain.Semantic, ve.Kind)

	_, err = svc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Central Park", getPOI(t, st, 1, 1).Name)
}

func TestPatch_MissingChild(t *testing.T) {
	st := sampleStore(t)
	svc := app.NewPointOfInterestService(session(t, st), nil)

	err := svc.Patch(context.Background(), 1, 7, []app.PatchOperation{app.ReplaceName{Value: "x"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_RemovesAndNotifiesOnce(t *testing.T) {
	st := sampleStore(t)
	n := &recordingNotifier{}
	svc := app.NewPointOfInterestService(session(t, st), n)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 1, 1))
	assert.Empty(t, n.sent, "nothing is sent before the removal is committed")

	ok, err := svc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	svc.Wait()

	assert.Nil(t, getPOI(t, st, 1, 1))
	c, err := session(t, st).GetCity(ctx, 1, true)
	require.NoError(t, err)
	for _, p := range c.PointsOfInterest {
		assert.NotEqual(t, int64(1), p.ID)
	}

	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0].body, "Central Park")
	assert.Contains(t, n.sent[0].body, "1")

	_, err = svc.SaveChanges(ctx)
	require.NoError(t, err)
	svc.Wait()
	assert.Len(t, n.sent, 1, "notifications are delivered exactly once")
}

func TestDelete_MissingChildDoesNotNotify(t *testing.T) {
	st := sampleStore(t)
	n := &recordingNotifier{}
	svc := app.NewPointOfInterestService(session(t, st), n)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, 2, 1), domain.ErrNotFound)
	_, err := svc.SaveChanges(ctx)
	require.NoError(t, err)
	svc.Wait()
	assert.Empty(t, n.sent)
}

func TestDelete_NotifierFailureKeepsDelete(t *testing.T) {
	st := sampleStore(t)
	n := &recordingNotifier{err: errors.New("smtp down")}
	svc := app.NewPointOfInterestService(session(t, st), n)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 2, 7))
	ok, err := svc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	svc.Wait()
	assert.Nil(t, getPOI(t, st, 2, 7))
	assert.Len(t, n.sent, 1)
}

func TestSaveChanges_PersistenceFailurePropagatesAndSuppressesNotification(t *testing.T) {
	st := sampleStore(t)
	n := &recordingNotifier{}
	svc := app.NewPointOfInterestService(failingCommit{session(t, st)}, n)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 1, 2))
	ok, err := svc.SaveChanges(ctx)
	require.Error(t, err)
	assert.False(t, ok)
	svc.Wait()
	assert.Empty(t, n.sent)
	assert.NotNil(t, getPOI(t, st, 1, 2))
}

func TestSaveChanges_DoesNotWaitForNotifier(t *testing.T) {
	st := sampleStore(t)
	n := newBlockingNotifier()
	svc := app.NewPointOfInterestService(session(t, st), n)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, svc.Delete(ctx, 1, 2))

	saved := make(chan error, 1)
	go func() {
		_, err := svc.SaveChanges(ctx)
		saved <- err
	}()
	select {
	case err := <-saved:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("SaveChanges blocked on the notifier")
	}
	assert.Nil(t, getPOI(t, st, 1, 2))

	// The caller going away must not cancel delivery.
	cancel()
	select {
	case err := <-n.done:
		t.Fatalf("delivery ended with the request context: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(n.release)
	svc.Wait()
	assert.NoError(t, <-n.done)
}
