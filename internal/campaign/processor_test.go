package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/admission"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/dialer"

	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	mu         sync.Mutex
	dispatched []string
	failOn     map[string]bool
	onDispatch func(n int)
}

func (d *fakeDialer) Name() string                          { return "fake" }
func (d *fakeDialer) HealthCheck(ctx context.Context) error { return nil }

func (d *fakeDialer) Dispatch(ctx context.Context, params dialer.CallParams) (dialer.DispatchResult, error) {
	d.mu.Lock()
	if d.failOn[params.To] {
		d.mu.Unlock()
		return dialer.DispatchResult{}, errors.New("provider rejected call")
	}
	d.dispatched = append(d.dispatched, params.To)
	n := len(d.dispatched)
	cb := d.onDispatch
	d.mu.Unlock()
	if cb != nil {
		cb(n)
	}
	return dialer.DispatchResult{ProviderCallID: "CA-" + params.CallID}, nil
}

func (d *fakeDialer) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dispatched))
	copy(out, d.dispatched)
	return out
}

func phone(i int) string { return fmt.Sprintf("+1555000%04d", i) }

type engineFixture struct {
	store    *MemoryStore
	registry *calls.MemoryRegistry
	source   *contacts.MemorySource
	dialer   *fakeDialer
	proc     *Processor
}

func newEngineFixture(t *testing.T, total int, adm Admission) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:    NewMemoryStore(),
		registry: calls.NewMemoryRegistry(),
		source:   contacts.NewMemorySource(),
		dialer:   &fakeDialer{failOn: map[string]bool{}},
	}
	for i := 0; i < total; i++ {
		f.source.Lists["list-1"] = append(f.source.Lists["list-1"], contacts.Contact{
			ListID: "list-1", Position: i, Phone: phone(i),
		})
	}
	require.NoError(t, f.store.Create(context.Background(), Campaign{
		ID: "camp-1", ClientID: "cl-1", ListID: "list-1", TotalContacts: total,
	}))
	if adm == nil {
		adm = admission.NewController(f.registry, admission.NewLimitPolicy(nil, 1000), nil,
			admission.Config{GlobalMax: 1000, CallTimeout: time.Minute}, nil)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.proc = NewProcessor(f.store, f.registry, f.source, adm, f.dialer, nil, "+15550000000",
		ProcessorConfig{
			AdmissionBackoffMin: time.Millisecond,
			AdmissionBackoffMax: 4 * time.Millisecond,
			StoreRetryDelay:     time.Millisecond,
		}, log)
	return f
}

func TestProcessor_RunToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 10, nil)

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 10, got.CurrentIndex)
	require.Equal(t, 10, got.ProcessedContacts)
	require.Empty(t, got.WorkerID)

	want := make([]string, 10)
	for i := range want {
		want[i] = phone(i)
	}
	require.Equal(t, want, f.dialer.calls())

	// Every dispatch left a correlated reservation behind.
	n, err := f.registry.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestProcessor_ClaimConflictAbortsSilently(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 10, nil)

	_, err := f.store.TryTransition(ctx, "camp-1", []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "other"})
	require.NoError(t, err)

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))
	require.Empty(t, f.dialer.calls())

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, "other", got.WorkerID)
}

func TestProcessor_ResumeContinuesFromCursor(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 10, nil)

	// A previous worker got through contacts 0..3 before pausing.
	_, err := f.store.TryTransition(ctx, "camp-1", []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "w0"})
	require.NoError(t, err)
	_, err = f.store.AdvanceCursor(ctx, "camp-1", "w0", 4)
	require.NoError(t, err)
	require.NoError(t, f.store.IncrementCounter(ctx, "camp-1", CounterProcessedContacts, 4))
	_, err = f.store.TryTransition(ctx, "camp-1", []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	require.NoError(t, err)

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	// Contacts 4..9 only: nothing redispatched, nothing skipped.
	want := make([]string, 0, 6)
	for i := 4; i < 10; i++ {
		want = append(want, phone(i))
	}
	require.Equal(t, want, f.dialer.calls())

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 10, got.ProcessedContacts)
}

// pauseAtAdmission pauses the campaign on the nth acquisition attempt and
// reports denial, simulating a control action landing while the loop is
// between contacts.
type pauseAtAdmission struct {
	inner      Admission
	store      Store
	campaignID string
	pauseAt    int
	n          int
}

func (p *pauseAtAdmission) TryAcquire(ctx context.Context, clientID, campaignID, to string) (admission.Token, error) {
	p.n++
	if p.n == p.pauseAt {
		if _, err := p.store.TryTransition(ctx, p.campaignID, []Status{StatusRunning}, StatusPaused, TransitionOpts{}); err != nil {
			return admission.Token{}, err
		}
		return admission.Token{}, admission.ErrDenied
	}
	return p.inner.TryAcquire(ctx, clientID, campaignID, to)
}

func (p *pauseAtAdmission) Release(ctx context.Context, tok admission.Token, outcome calls.CallStatus) error {
	return p.inner.Release(ctx, tok, outcome)
}

func TestProcessor_PauseStopsAtContactBoundary(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 10, nil)
	reg := f.registry
	inner := admission.NewController(reg, admission.NewLimitPolicy(nil, 1000), nil,
		admission.Config{GlobalMax: 1000, CallTimeout: time.Minute}, nil)
	adm := &pauseAtAdmission{inner: inner, store: f.store, campaignID: "camp-1", pauseAt: 5}
	f.proc.admission = adm

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	// Contacts 0..3 went out; the pause landed before contact 4 was acquired.
	require.Len(t, f.dialer.calls(), 4)

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)
	require.Equal(t, 4, got.CurrentIndex)
	require.Equal(t, 4, got.ProcessedContacts)

	// Resume finishes 4..9.
	require.NoError(t, f.proc.Run(ctx, "camp-1", "w2"))
	require.Len(t, f.dialer.calls(), 10)
	got, err = f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestProcessor_DispatchErrorFailsContactNotCampaign(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 5, nil)
	f.dialer.failOn[phone(2)] = true

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 5, got.ProcessedContacts)
	require.Equal(t, 1, got.FailedCalls)

	// The failed contact's reservation was settled as failed.
	active, err := f.registry.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, active)
}

func TestProcessor_MissingContactFailsContactNotCampaign(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 5, nil)
	// List is shorter than total_contacts: position 4 does not exist.
	f.source.Lists["list-1"] = f.source.Lists["list-1"][:4]

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 5, got.ProcessedContacts)
	require.Equal(t, 1, got.FailedCalls)
	require.Len(t, f.dialer.calls(), 4)
}

// denyFirstAdmission denies the first n acquisition attempts.
type denyFirstAdmission struct {
	inner Admission
	deny  int
	n     int
}

func (d *denyFirstAdmission) TryAcquire(ctx context.Context, clientID, campaignID, to string) (admission.Token, error) {
	d.n++
	if d.n <= d.deny {
		return admission.Token{}, admission.ErrDenied
	}
	return d.inner.TryAcquire(ctx, clientID, campaignID, to)
}

func (d *denyFirstAdmission) Release(ctx context.Context, tok admission.Token, outcome calls.CallStatus) error {
	return d.inner.Release(ctx, tok, outcome)
}

func TestProcessor_AdmissionDenialBacksOffAndRetries(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 3, nil)
	inner := admission.NewController(f.registry, admission.NewLimitPolicy(nil, 1000), nil,
		admission.Config{GlobalMax: 1000, CallTimeout: time.Minute}, nil)
	f.proc.admission = &denyFirstAdmission{inner: inner, deny: 3}

	require.NoError(t, f.proc.Run(ctx, "camp-1", "w1"))

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Len(t, f.dialer.calls(), 3)
}

func TestProcessor_ShutdownParksCampaign(t *testing.T) {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newEngineFixture(t, 10, nil)
	f.dialer.onDispatch = func(n int) {
		if n == 4 {
			cancel()
		}
	}

	require.NoError(t, f.proc.Run(runCtx, "camp-1", "w1"))

	got, err := f.store.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)
	require.Equal(t, 4, got.CurrentIndex)
	require.Empty(t, got.WorkerID)
	require.Len(t, f.dialer.calls(), 4)
}

func TestProcessor_UnrecoverableStoreErrorFailsCampaign(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, 10, nil)
	failing := &failingStore{Store: f.store, failAfterGets: 2}
	f.proc.store = failing

	err := f.proc.Run(ctx, "camp-1", "w1")
	require.Error(t, err)

	got, err := f.store.Get(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.NotEmpty(t, got.LastError)
}

// failingStore passes through until failAfterGets reads have happened, then
// errors every Get. TryTransition keeps working so the failure path can
// record the terminal state.
type failingStore struct {
	Store
	mu            sync.Mutex
	gets          int
	failAfterGets int
}

func (s *failingStore) Get(ctx context.Context, id string) (Campaign, error) {
	s.mu.Lock()
	s.gets++
	n := s.gets
	s.mu.Unlock()
	if n > s.failAfterGets {
		return Campaign{}, errors.New("connection reset")
	}
	return s.Store.Get(ctx, id)
}
