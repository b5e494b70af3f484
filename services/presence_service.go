package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
)

// PresenceService tracks online state from live client connections.
//
// A user is online while at least one connection is open. Each connection
// arms its disconnect handler before the online write, so a connection that
// drops at any point, including during Connect, ends with an offline record.
// Writes for one user are serialised by that user's slot; users never wait
// on each other.
type PresenceService struct {
	db     *gorm.DB
	hub    *realtime.Hub
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex // guards slots
	slots map[uint]*presenceSlot
}

// presenceSlot holds one user's open connections. It leaves the map once
// the last connection has written offline.
type presenceSlot struct {
	mu      sync.Mutex
	conns   int
	retired bool
}

func NewPresenceService(d Deps) *PresenceService {
	d = d.withDefaults()
	return &PresenceService{
		db:     d.DB,
		hub:    d.Hub,
		logger: d.Logger,
		now:    d.Now,
		slots:  make(map[uint]*presenceSlot),
	}
}

// lockSlot returns userID's slot, locked. A slot retired while we waited
// for it is replaced by a fresh one.
func (s *PresenceService) lockSlot(userID uint) *presenceSlot {
	for {
		s.mu.Lock()
		sl := s.slots[userID]
		if sl == nil {
			sl = &presenceSlot{}
			s.slots[userID] = sl
		}
		s.mu.Unlock()

		sl.mu.Lock()
		if !sl.retired {
			return sl
		}
		sl.mu.Unlock()
	}
}

// release drops one connection and returns how many remain. Caller holds
// sl.mu.
func (sl *presenceSlot) release() int {
	if sl.conns > 0 {
		sl.conns--
	}
	return sl.conns
}

// retire removes an empty slot once its last write is done. Caller holds
// sl.mu, so a Connect queued on it retries with a fresh slot.
func (s *PresenceService) retire(userID uint, sl *presenceSlot) {
	sl.retired = true
	s.mu.Lock()
	if s.slots[userID] == sl {
		delete(s.slots, userID)
	}
	s.mu.Unlock()
}

// PresenceConn is one live client connection.
type PresenceConn struct {
	svc    *PresenceService
	userID uint
	slot   *presenceSlot
	stop   func() bool
	closed bool // guarded by slot.mu
}

// Connect marks userID online for as long as ctx lives. Cancelling ctx is
// the disconnect signal; Close is the explicit one.
func (s *PresenceService) Connect(ctx context.Context, userID uint) (*PresenceConn, error) {
	if userID == 0 {
		return nil, apperrors.Unauthorized("presence requires a principal")
	}
	sl := s.lockSlot(userID)
	defer sl.mu.Unlock()
	c := &PresenceConn{svc: s, userID: userID, slot: sl}

	// Arm first. If ctx is already done the handler runs right away and
	// blocks on the slot until the online write below has finished.
	c.stop = context.AfterFunc(ctx, c.disconnect)

	sl.conns++
	if sl.conns == 1 {
		if err := s.write(userID, models.PresenceOnline); err != nil {
			c.stop()
			c.closed = true
			if sl.release() == 0 {
				s.retire(userID, sl)
			}
			return nil, err
		}
	}
	s.logger.Debug("presence connected", "user_id", userID, "connections", sl.conns)
	return c, nil
}

// Close disconnects explicitly. Safe to call more than once.
func (c *PresenceConn) Close() {
	c.stop()
	c.disconnect()
}

func (c *PresenceConn) UserID() uint { return c.userID }

func (c *PresenceConn) disconnect() {
	s, sl := c.svc, c.slot
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	left := sl.release()
	if left == 0 {
		if err := s.write(c.userID, models.PresenceOffline); err != nil {
			s.logger.Error("presence offline write failed", "user_id", c.userID, "err", err)
		}
		s.retire(c.userID, sl)
	}
	s.logger.Debug("presence disconnected", "user_id", c.userID, "connections", left)
}

// write upserts the record. It uses a fresh context: the offline write runs
// exactly when the connection context has been cancelled.
func (s *PresenceService) write(userID uint, state string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := models.PresenceRecord{UserID: userID, State: state, LastChanged: s.now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "last_changed"}),
	}).Create(&rec).Error
	if err != nil {
		return apperrors.ErrStore("presence.upsert", err)
	}
	s.hub.Publish(realtime.PresenceTopic(userID))
	return nil
}

// Get returns the stored record; a user never seen reads as offline.
func (s *PresenceService) Get(ctx context.Context, userID uint) (*models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&recs).Error; err != nil {
		return nil, apperrors.ErrStore("presence.get", err)
	}
	if len(recs) == 0 {
		return &models.PresenceRecord{UserID: userID, State: models.PresenceOffline}, nil
	}
	return &recs[0], nil
}

func (s *PresenceService) Subscribe(userID uint, fn Snapshot[*models.PresenceRecord]) *realtime.Subscription {
	return s.hub.Subscribe(realtime.PresenceTopic(userID), func() {
		fn(s.Get(background(), userID))
	})
}

// ResetAll marks every record offline. Run at start-up, before serving,
// so records left online by a previous process do not linger.
func (s *PresenceService) ResetAll(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PresenceRecord{}).
		Where("state = ?", models.PresenceOnline).
		Updates(map[string]any{"state": models.PresenceOffline, "last_changed": s.now()})
	if res.Error != nil {
		return 0, apperrors.ErrStore("presence.reset", res.Error)
	}
	return res.RowsAffected, nil
}
