package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vnkhanh/dating-server/config"
	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/realtime"
)

const waitFor = 2 * time.Second

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection is one in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	deps          Deps
	clock         *fakeClock
	notifications *NotificationService
	requests      *RequestService
	chats         *ChatService
	presence      *PresenceService
	dates         *DateService
	profiles      *ProfileService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := newFakeClock()
	d := Deps{
		DB:     newTestDB(t),
		Hub:    realtime.NewHub(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.Now,
	}
	n := NewNotificationService(d)
	return &env{
		deps:          d,
		clock:         clock,
		notifications: n,
		requests:      NewRequestService(d, n),
		chats:         NewChatService(d, nil, 5*time.Second, n),
		presence:      NewPresenceService(d),
		dates:         NewDateService(d),
		profiles:      NewProfileService(d),
	}
}

func (e *env) user(t *testing.T, name, gender string) *models.User {
	t.Helper()
	u := &models.User{Email: name + "@example.com", DisplayName: name, Gender: gender}
	require.NoError(t, e.deps.DB.Create(u).Error)
	return u
}

func (e *env) date(t *testing.T, host *models.User) *models.DatePosting {
	t.Helper()
	d, err := e.dates.Create(context.Background(), host.ID, DateInput{
		Title:       "Coffee at the lake",
		Location:    "West Lake",
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Category:    "Coffee",
	})
	require.NoError(t, err)
	return d
}

// scenario is a host with one open date and one requester.
type scenario struct {
	*env
	host      *models.User
	requester *models.User
	dateID    uint
}

func newScenario(t *testing.T) *scenario {
	e := newEnv(t)
	host := e.user(t, "minh", models.GenderMale)
	requester := e.user(t, "lan", models.GenderFemale)
	d := e.date(t, host)
	return &scenario{env: e, host: host, requester: requester, dateID: d.ID}
}

func (s *scenario) send(t *testing.T) *models.JoinRequest {
	t.Helper()
	req, err := s.requests.Send(context.Background(), SendRequestInput{
		DateID:      s.dateID,
		HostID:      s.host.ID,
		RequesterID: s.requester.ID,
	})
	require.NoError(t, err)
	return req
}

// collect turns a Snapshot callback into a channel.
func collect[T any]() (Snapshot[T], <-chan T) {
	ch := make(chan T, 16)
	return func(items T, err error) {
		if err != nil {
			return
		}
		ch <- items
	}, ch
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

// nextMatching drains snapshots until one satisfies ok.
func nextMatching[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			var zero T
			return zero
		}
	}
}
