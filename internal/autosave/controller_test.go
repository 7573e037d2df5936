package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

const (
	testUser = "user-1"
	testForm = drafts.FormExhibitorRegistration
)

func newTestController(t *testing.T, store drafts.Store, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(store, opts...), clock
}

func TestController_EmptyPayloadWithoutDraftMakesNoWrites(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload(""))
	c.FormStateChanged(namePayload("   "))
	c.FormStateChanged(drafts.Payload{})
	clock.Advance(5 * time.Second)

	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes, got %+v", got)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no armed timer, got %d", clock.Pending())
	}
}

func TestController_DebounceCollapsesBurst(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	for _, name := range []string{"K", "Ki", "Kit", "Kitc", "Kitch", "Kitche", "Kitchen"} {
		c.FormStateChanged(namePayload(name))
		clock.Advance(100 * time.Millisecond)
	}
	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes during burst, got %+v", got)
	}
	if c.State() != StatePendingUpsert {
		t.Fatalf("state = %s, want pending_upsert", c.State())
	}

	clock.Advance(DefaultDebounce)

	got := store.writes()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 write, got %d", len(got))
	}
	if got[0].op != "upsert" || got[0].payload.FormData["shop_name"] != "Kitchen" {
		t.Fatalf("unexpected write: %+v", got[0])
	}
	if !c.DraftExists() {
		t.Fatal("expected draftExists after upsert")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
}

func TestController_DeleteOnClear(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Taco"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 1 {
		t.Fatalf("expected 1 upsert, got %d", store.count("upsert"))
	}

	c.FormStateChanged(namePayload(""))
	if c.State() != StatePendingDelete {
		t.Fatalf("state = %s, want pending_delete", c.State())
	}
	clock.Advance(DefaultDebounce)
	if store.count("delete") != 1 {
		t.Fatalf("expected 1 delete, got %d", store.count("delete"))
	}
	if c.DraftExists() {
		t.Fatal("expected draftExists=false after delete")
	}

	c.FormStateChanged(namePayload(""))
	clock.Advance(DefaultDebounce)
	if store.count("delete") != 1 {
		t.Fatalf("second empty notification must not write, got %d deletes", store.count("delete"))
	}
	if store.Len() != 0 {
		t.Fatalf("expected store to be empty")
	}
}

func TestController_ResumeDoesNotRewriteHydratedState(t *testing.T) {
	store := newRecordingStore()
	stored := drafts.Payload{
		FormData: map[string]interface{}{"shop_name": "Crepe Van", "vehicle_length_cm": float64(420)},
		Flags:    map[string]bool{drafts.FlagTermsViewed: true},
	}
	key := drafts.Key{UserID: testUser, FormType: testForm}
	if err := store.MemoryStore.Upsert(context.Background(), key, stored, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, clock := newTestController(t, store)
	hydrated := c.Initialize(context.Background(), testUser, testForm)
	if hydrated == nil {
		t.Fatal("expected hydrated payload")
	}
	if hydrated.FormData["shop_name"] != "Crepe Van" {
		t.Fatalf("unexpected hydrated payload: %+v", hydrated)
	}
	if !c.DraftExists() {
		t.Fatal("expected draftExists after hydration")
	}

	c.FormStateChanged(*hydrated)
	clock.Advance(5 * time.Second)

	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes for unchanged hydrated state, got %+v", got)
	}
	if store.count("get") != 1 {
		t.Fatalf("expected exactly one load, got %d", store.count("get"))
	}
}

func TestController_SubmitCancelsPendingAndDeletes(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Okonomiyaki"))
	clock.Advance(DefaultDebounce)
	c.FormStateChanged(namePayload("Okonomiyaki Stand"))
	if clock.Pending() != 1 {
		t.Fatalf("expected armed upsert timer")
	}

	c.SubmitSucceeded(context.Background())

	if clock.Pending() != 0 {
		t.Fatalf("submit must cancel the pending timer")
	}
	clock.Advance(5 * time.Second)
	if store.count("upsert") != 1 {
		t.Fatalf("cancelled upsert must not fire, got %d upserts", store.count("upsert"))
	}
	if store.count("delete") != 1 {
		t.Fatalf("expected exactly 1 delete, got %d", store.count("delete"))
	}
	if c.DraftExists() || store.Len() != 0 {
		t.Fatal("draft must be gone after submit")
	}

	// the form can be reused; the old serialization must not suppress it
	c.FormStateChanged(namePayload("Okonomiyaki"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 2 {
		t.Fatalf("expected a fresh upsert after reuse, got %d", store.count("upsert"))
	}
}

func TestController_SubmitWithoutDraftMakesNoCalls(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Gyoza"))
	c.SubmitSucceeded(context.Background())
	clock.Advance(5 * time.Second)

	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes, got %+v", got)
	}
}

func TestController_TypingScenario(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	name := "Takoyaki"
	for i := 1; i <= len(name); i++ {
		c.FormStateChanged(namePayload(name[:i]))
		clock.Advance(500 * time.Millisecond / time.Duration(len(name)))
	}
	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected 0 writes while typing, got %d", len(got))
	}

	clock.Advance(DefaultDebounce)
	got := store.writes()
	if len(got) != 1 || got[0].op != "upsert" || got[0].payload.FormData["shop_name"] != name {
		t.Fatalf("expected 1 upsert with full name, got %+v", got)
	}

	for i := len(name) - 1; i >= 0; i-- {
		c.FormStateChanged(namePayload(name[:i]))
	}
	clock.Advance(DefaultDebounce)
	got = store.writes()
	if len(got) != 2 || got[1].op != "delete" {
		t.Fatalf("expected upsert then delete, got %+v", got)
	}
}

func TestController_ClearBeforeFirstWriteCancelsUpsert(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("a"))
	clock.Advance(300 * time.Millisecond)
	c.FormStateChanged(namePayload(""))
	clock.Advance(5 * time.Second)

	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes, got %+v", got)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
}

func TestController_HydrationFailureStartsEmpty(t *testing.T) {
	store := newRecordingStore()
	store.getErr = errors.New("connection refused")
	c, clock := newTestController(t, store)

	if got := c.Initialize(context.Background(), testUser, testForm); got != nil {
		t.Fatalf("expected nil payload on failure, got %+v", got)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}

	c.FormStateChanged(namePayload("Ramen"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 1 {
		t.Fatalf("form must stay usable after hydration failure")
	}
}

func TestController_IgnoresChangesBeforeInitialize(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)

	c.FormStateChanged(namePayload("early"))
	clock.Advance(5 * time.Second)
	if got := store.writes(); len(got) != 0 {
		t.Fatalf("expected no writes before initialize, got %+v", got)
	}

	c.Initialize(context.Background(), testUser, testForm)
	if c.Initialize(context.Background(), testUser, testForm) != nil {
		t.Fatal("second initialize must be a no-op")
	}
	if store.count("get") != 1 {
		t.Fatalf("expected one load, got %d", store.count("get"))
	}
}

func TestController_UpsertFailureIsLoggedAndRecovers(t *testing.T) {
	store := newRecordingStore()
	store.upsertErr = []error{errors.New("throttled")}
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Udon"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 1 || store.Len() != 0 {
		t.Fatalf("expected one failed upsert")
	}
	if c.DraftExists() {
		t.Fatal("failed upsert must not mark the draft as existing")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}

	c.FormStateChanged(namePayload("Udon Bar"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 2 || store.Len() != 1 {
		t.Fatalf("next change must write again")
	}
}

func TestController_DeleteFailureKeepsFlag(t *testing.T) {
	store := newRecordingStore()
	store.deleteErr = []error{errors.New("timeout")}
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Soba"))
	clock.Advance(DefaultDebounce)
	c.FormStateChanged(namePayload(""))
	clock.Advance(DefaultDebounce)
	if !c.DraftExists() {
		t.Fatal("failed delete must leave draftExists=true")
	}

	c.FormStateChanged(namePayload("S"))
	c.FormStateChanged(namePayload(""))
	clock.Advance(DefaultDebounce)
	if store.count("delete") != 2 || store.Len() != 0 {
		t.Fatalf("expected delete to be retried by the next clear, got %d deletes", store.count("delete"))
	}
}

func TestController_DisposeDropsPendingWrite(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Yakisoba"))
	c.Dispose()
	clock.Advance(5 * time.Second)

	if got := store.writes(); len(got) != 0 {
		t.Fatalf("disposed controller must not write, got %+v", got)
	}
	if c.State() != StateTerminated {
		t.Fatalf("state = %s, want terminated", c.State())
	}

	c.FormStateChanged(namePayload("after"))
	c.SubmitSucceeded(context.Background())
	clock.Advance(5 * time.Second)
	if got := store.writes(); len(got) != 0 {
		t.Fatalf("terminated controller must ignore calls, got %+v", got)
	}
}

func TestController_UpsertUsesClockTime(t *testing.T) {
	store := newRecordingStore()
	c, clock := newTestController(t, store, WithDebounce(time.Second))
	c.Initialize(context.Background(), testUser, testForm)
	start := clock.Now()

	c.FormStateChanged(namePayload("Kebab"))
	clock.Advance(time.Second)

	got := store.writes()
	if len(got) != 1 || !got[0].at.Equal(start.Add(time.Second)) {
		t.Fatalf("expected upsert at %v, got %+v", start.Add(time.Second), got)
	}
}

// gatedStore holds calls of one operation until released, to observe
// in-flight races.
type gatedStore struct {
	*recordingStore
	op      string
	release chan struct{}
	entered chan struct{}
}

func newGatedStore(op string) *gatedStore {
	return &gatedStore{
		recordingStore: newRecordingStore(),
		op:             op,
		release:        make(chan struct{}),
		entered:        make(chan struct{}, 1),
	}
}

func (s *gatedStore) wait(op string) {
	if s.op == op {
		s.entered <- struct{}{}
		<-s.release
	}
}

func (s *gatedStore) Upsert(ctx context.Context, key drafts.Key, payload drafts.Payload, updatedAt time.Time) error {
	s.wait("upsert")
	return s.recordingStore.Upsert(ctx, key, payload, updatedAt)
}

func (s *gatedStore) Delete(ctx context.Context, key drafts.Key) error {
	s.wait("delete")
	return s.recordingStore.Delete(ctx, key)
}

// advanceAsync runs clock.Advance on another goroutine and returns once the
// gated store call has started.
func advanceAsync(clock *fakeClock, store *gatedStore, d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		clock.Advance(d)
		close(done)
	}()
	<-store.entered
	return done
}

func TestController_ClearDuringInFlightUpsertRetracts(t *testing.T) {
	store := newGatedStore("upsert")
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Pho"))
	done := advanceAsync(clock, store, DefaultDebounce)

	// user clears the form while the upsert is still in flight
	c.FormStateChanged(namePayload(""))
	close(store.release)
	<-done

	if !c.DraftExists() || c.State() != StatePendingDelete {
		t.Fatalf("expected a retracting delete to be scheduled, state=%s", c.State())
	}
	clock.Advance(DefaultDebounce)
	if store.count("delete") != 1 || store.Len() != 0 {
		t.Fatalf("expected in-flight draft to be retracted")
	}
}

func TestController_SubmitThenDisposeRetractsLateUpsert(t *testing.T) {
	store := newGatedStore("upsert")
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Banh Mi"))
	done := advanceAsync(clock, store, DefaultDebounce)

	c.SubmitSucceeded(context.Background())
	c.Dispose()
	close(store.release)
	<-done

	if store.count("delete") != 1 || store.Len() != 0 {
		t.Fatalf("submitted form left a draft behind: deletes=%d drafts=%d", store.count("delete"), store.Len())
	}
	if c.DraftExists() {
		t.Fatal("expected draftExists=false after retract")
	}
}

func TestController_SubmitRetractsUpsertLandingBeforeDispose(t *testing.T) {
	store := newGatedStore("upsert")
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Banh Mi"))
	done := advanceAsync(clock, store, DefaultDebounce)

	c.SubmitSucceeded(context.Background())
	close(store.release)
	<-done
	// the retract must not wait for a timer that Dispose would cancel
	c.Dispose()

	if store.count("delete") != 1 || store.Len() != 0 {
		t.Fatalf("submitted form left a draft behind: deletes=%d drafts=%d", store.count("delete"), store.Len())
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no scheduled task, got %d", clock.Pending())
	}
}

func TestController_DisposeKeepsLateUpsert(t *testing.T) {
	store := newGatedStore("upsert")
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Banh Mi"))
	done := advanceAsync(clock, store, DefaultDebounce)

	c.Dispose()
	close(store.release)
	<-done

	if store.count("delete") != 0 || store.Len() != 1 {
		t.Fatal("a disposed, unsubmitted form must stay resumable")
	}
}

func TestController_DeleteRacingUpsertKeepsFlag(t *testing.T) {
	store := newGatedStore("delete")
	c, clock := newTestController(t, store)
	c.Initialize(context.Background(), testUser, testForm)

	c.FormStateChanged(namePayload("Arepa"))
	clock.Advance(DefaultDebounce)

	c.FormStateChanged(namePayload(""))
	done := advanceAsync(clock, store, DefaultDebounce)

	// a new upsert completes while the delete is still in flight
	c.FormStateChanged(namePayload("Arepa Bar"))
	clock.Advance(DefaultDebounce)
	if store.count("upsert") != 2 {
		t.Fatalf("expected second upsert, got %d", store.count("upsert"))
	}
	close(store.release)
	<-done

	if !c.DraftExists() {
		t.Fatal("delete that raced a completed upsert must not clear draftExists")
	}

	// clearing again must still reach the store
	store.op = ""
	c.FormStateChanged(namePayload(""))
	clock.Advance(DefaultDebounce)
	if store.count("delete") != 2 {
		t.Fatalf("expected a second delete, got %d", store.count("delete"))
	}
}
