package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
)

func (e *env) state(t *testing.T, userID uint) string {
	t.Helper()
	rec, err := e.presence.Get(context.Background(), userID)
	require.NoError(t, err)
	return rec.State
}

func (e *env) eventuallyState(t *testing.T, userID uint, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := e.presence.Get(context.Background(), userID)
		return err == nil && rec.State == want
	}, waitFor, 10*time.Millisecond)
}

func TestUnknownUserIsOffline(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, models.PresenceOffline, e.state(t, 42))
}

func TestConnectAndDropOnCancel(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "lan", models.GenderFemale)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := e.presence.Connect(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, e.state(t, u.ID))

	cancel()
	e.eventuallyState(t, u.ID, models.PresenceOffline)
}

func TestLastConnectionDecides(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "lan", models.GenderFemale)

	phone, cancelPhone := context.WithCancel(context.Background())
	laptop, cancelLaptop := context.WithCancel(context.Background())
	defer cancelLaptop()

	_, err := e.presence.Connect(phone, u.ID)
	require.NoError(t, err)
	second, err := e.presence.Connect(laptop, u.ID)
	require.NoError(t, err)

	cancelPhone()
	// Give the phone's handler a chance to run; it must not flip the state.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.PresenceOnline, e.state(t, u.ID))

	second.Close()
	second.Close()
	assert.Equal(t, models.PresenceOffline, e.state(t, u.ID))
}

func TestConnectWithDeadContextEndsOffline(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "lan", models.GenderFemale)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.presence.Connect(ctx, u.ID)
	require.NoError(t, err)

	e.eventuallyState(t, u.ID, models.PresenceOffline)
}

func TestPresenceSubscription(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "lan", models.GenderFemale)

	fn, ch := collect[*models.PresenceRecord]()
	sub := e.presence.Subscribe(u.ID, fn)
	defer sub.Close()
	assert.Equal(t, models.PresenceOffline, next(t, ch).State)

	conn, err := e.presence.Connect(context.Background(), u.ID)
	require.NoError(t, err)
	nextMatching(t, ch, func(r *models.PresenceRecord) bool { return r.State == models.PresenceOnline })

	conn.Close()
	nextMatching(t, ch, func(r *models.PresenceRecord) bool { return r.State == models.PresenceOffline })
}

func TestResetAllClearsStaleOnline(t *testing.T) {
	e := newEnv(t)
	a := e.user(t, "lan", models.GenderFemale)
	b := e.user(t, "minh", models.GenderMale)
	require.NoError(t, e.deps.DB.Create(&models.PresenceRecord{UserID: a.ID, State: models.PresenceOnline, LastChanged: e.clock.Now()}).Error)
	require.NoError(t, e.deps.DB.Create(&models.PresenceRecord{UserID: b.ID, State: models.PresenceOffline, LastChanged: e.clock.Now()}).Error)

	n, err := e.presence.ResetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, models.PresenceOffline, e.state(t, a.ID))
}

func TestSlowWriteDoesNotBlockOtherUsers(t *testing.T) {
	e := newEnv(t)
	slow := e.user(t, "lan", models.GenderFemale)
	quick := e.user(t, "mai", models.GenderFemale)

	// Hold slow's upsert before it takes the database connection.
	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce, releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	err := e.deps.DB.Callback().Create().Before("gorm:begin_transaction").Register("test:hold_presence", func(tx *gorm.DB) {
		if rec, ok := tx.Statement.Dest.(*models.PresenceRecord); ok && rec.UserID == slow.ID {
			enterOnce.Do(func() { close(entered) })
			<-release
		}
	})
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, err := e.presence.Connect(context.Background(), slow.ID)
		slowDone <- err
	}()
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("slow write never started")
	}

	quickDone := make(chan error, 1)
	go func() {
		_, err := e.presence.Connect(context.Background(), quick.ID)
		quickDone <- err
	}()
	select {
	case err := <-quickDone:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("connect waited on another user's write")
	}
	assert.Equal(t, models.PresenceOnline, e.state(t, quick.ID))

	unblock()
	require.NoError(t, <-slowDone)
	assert.Equal(t, models.PresenceOnline, e.state(t, slow.ID))
}

func TestSlotIsReleasedAfterLastDrop(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "lan", models.GenderFemale)

	for i := 0; i < 20; i++ {
		conn, err := e.presence.Connect(context.Background(), u.ID)
		require.NoError(t, err)
		conn.Close()
	}
	assert.Equal(t, models.PresenceOffline, e.state(t, u.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := e.presence.Connect(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, e.state(t, u.ID))

	e.presence.mu.Lock()
	assert.Len(t, e.presence.slots, 1)
	e.presence.mu.Unlock()
}
