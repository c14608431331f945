package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-assistant/internal/auth"
	"hospital-assistant/pkg"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(30*time.Minute, WithClock(clock.Now)), clock
}

type directory map[string]pkg.Patient

func (d directory) FindPatientByPhone(_ context.Context, phone string) (*pkg.Patient, error) {
	p, ok := d[phone]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return &p, nil
}

func verify(t *testing.T, phone string, p pkg.Patient) auth.Verification {
	t.Helper()
	a := auth.New(directory{phone: p}, auth.NoopNotifier{})
	v, ok, err := a.CallerID(context.Background(), phone)
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestResolveOrCreateNewGuest(t *testing.T) {
	store, _ := newTestStore(t)

	sess := store.ResolveOrCreate("")
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, pkg.LevelGuest, sess.Level)
	assert.False(t, sess.Verified)
	assert.Nil(t, sess.Identity)

	again := store.ResolveOrCreate(sess.ID)
	assert.Equal(t, sess.ID, again.ID)

	other := store.ResolveOrCreate("does-not-exist")
	assert.NotEqual(t, "does-not-exist", other.ID)
	assert.Equal(t, 2, store.Len())
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	store, clock := newTestStore(t)

	sess := store.ResolveOrCreate("")
	require.NoError(t, store.AppendTurn(sess.ID, pkg.RoleUser, "hello"))

	clock.Advance(31 * time.Minute)

	_, err := store.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh := store.ResolveOrCreate(sess.ID)
	assert.NotEqual(t, sess.ID, fresh.ID)
	assert.Empty(t, fresh.Transcript)
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	store, clock := newTestStore(t)
	sess := store.ResolveOrCreate("")

	for i := 0; i < 4; i++ {
		clock.Advance(20 * time.Minute)
		got := store.ResolveOrCreate(sess.ID)
		require.Equal(t, sess.ID, got.ID)
	}
}

func TestTranscriptIsBounded(t *testing.T) {
	store, _ := newTestStore(t)
	sess := store.ResolveOrCreate("")

	for i := 0; i < MaxTranscript+5; i++ {
		require.NoError(t, store.AppendTurn(sess.ID, pkg.RoleUser, fmt.Sprintf("msg %d", i)))
	}

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Transcript, MaxTranscript)
	assert.Equal(t, "msg 5", got.Transcript[0].Text)
	assert.Equal(t, fmt.Sprintf("msg %d", MaxTranscript+4), got.Transcript[MaxTranscript-1].Text)

	recent := got.Recent(10)
	require.Len(t, recent, 10)
	assert.Equal(t, got.Transcript[MaxTranscript-10], recent[0])
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	sess := store.ResolveOrCreate("")
	require.NoError(t, store.AppendTurn(sess.ID, pkg.RoleUser, "original"))

	snap, err := store.Get(sess.ID)
	require.NoError(t, err)
	snap.Transcript[0].Text = "tampered"
	snap.Level = pkg.LevelRegistered

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Transcript[0].Text)
	assert.Equal(t, pkg.LevelGuest, got.Level)
}

func TestEscalateLinksIdentity(t *testing.T) {
	store, _ := newTestStore(t)
	sess := store.ResolveOrCreate("")

	patient := pkg.Patient{ID: 7, Name: "Rahul Sharma", PatientCode: "CGH-10001"}
	got, err := store.Escalate(sess.ID, verify(t, "9876543210", patient))
	require.NoError(t, err)

	assert.True(t, got.Verified)
	assert.Equal(t, pkg.LevelRegistered, got.Level)
	require.NotNil(t, got.Identity)
	assert.Equal(t, int64(7), got.Identity.PatientID)
	assert.Equal(t, "CGH-10001", got.Identity.PatientCode)
	assert.Equal(t, "9876543210", got.Identity.Phone)
}

func TestEscalateRejectsZeroVerification(t *testing.T) {
	store, _ := newTestStore(t)
	sess := store.ResolveOrCreate("")

	_, err := store.Escalate(sess.ID, auth.Verification{})
	assert.ErrorIs(t, err, auth.ErrNotVerified)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified)
	assert.Nil(t, got.Identity)
}

func TestEscalateUnknownSession(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Escalate("missing", verify(t, "9876543210", pkg.Patient{ID: 1}))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndAndSweep(t *testing.T) {
	store, clock := newTestStore(t)
	a := store.ResolveOrCreate("")
	b := store.ResolveOrCreate("")
	c := store.ResolveOrCreate("")

	store.End(a.ID)
	assert.Equal(t, 2, store.Len())

	clock.Advance(20 * time.Minute)
	store.ResolveOrCreate(c.ID)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, store.ExpireSweep())
	_, err := store.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(c.ID)
	assert.NoError(t, err)
}

func TestConcurrentAppends(t *testing.T) {
	store, _ := newTestStore(t)
	sess := store.ResolveOrCreate("")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AppendTurn(sess.ID, pkg.RoleUser, fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 20)
}
