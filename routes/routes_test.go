package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vnkhanh/dating-server/config"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/services"
	"github.com/vnkhanh/dating-server/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	deps := services.Deps{
		DB:     db,
		Hub:    realtime.NewHub(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)

	r := gin.New()
	SetupRoutes(r, Deps{
		DB:        db,
		Tokens:    tokens,
		Services:  NewServices(deps, tokens, "", nil, 6*time.Second),
		Heartbeat: time.Second,
		Limits:    config.RateLimit{RequestsPerMin: 60, MessagesPerMin: 600, Burst: 20},
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		_ = sqlDB.Close()
	})
	return &testServer{Server: srv, t: t}
}

// do sends body as JSON and decodes the response into out when given.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) register(email, name, gender string) (string, uint) {
	s.t.Helper()
	var res struct {
		Token string `json:"access_token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	code := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "password": "secret123", "display_name": name, "gender": gender,
	}, &res)
	require.Equal(s.t, http.StatusCreated, code)
	return res.Token, res.User.ID
}

type sseStream struct {
	rd     *bufio.Reader
	cancel context.CancelFunc
}

func (s *testServer) stream(path, token string) *sseStream {
	s.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+path, nil)
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	require.Equal(s.t, http.StatusOK, resp.StatusCode)
	assert.Contains(s.t, resp.Header.Get("Content-Type"), "text/event-stream")
	s.t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return &sseStream{rd: bufio.NewReader(resp.Body), cancel: cancel}
}

// next returns the next named event, skipping heartbeats.
func (st *sseStream) next(t *testing.T) (string, string) {
	t.Helper()
	type result struct{ event, data string }
	ch := make(chan result, 1)
	go func() {
		var ev, data string
		for {
			line, err := st.rd.ReadString('\n')
			if err != nil {
				ch <- result{}
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if ev != "" || data != "" {
					ch <- result{ev, data}
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				ev = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	select {
	case r := <-ch:
		return r.event, r.data
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return "", ""
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ping", "", nil, &body))
	assert.Equal(t, "pong", body["message"])

	var health map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "ok", health["db"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/me", "/api/dates", "/api/requests", "/api/chats", "/api/notifications"} {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, path, "", nil, nil), path)
	}
}

func TestRequestToChatFlow(t *testing.T) {
	s := newTestServer(t)
	hostTok, hostID := s.register("minh@example.com", "Minh", "male")
	guestTok, _ := s.register("lan@example.com", "Lan", "female")

	var date struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	code := s.do(http.MethodPost, "/api/dates", hostTok, gin.H{
		"title": "Coffee at the lake", "scheduled_at": time.Now().Add(24 * time.Hour), "category": "coffee",
	}, &date)
	require.Equal(t, http.StatusCreated, code)

	// Women do not host.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/dates", guestTok, gin.H{
		"title": "Brunch", "scheduled_at": time.Now(),
	}, nil))

	var created struct {
		Data struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
			HostID uint   `json:"host_id"`
			ChatID *uint  `json:"chat_id"`
		} `json:"data"`
	}
	code = s.do(http.MethodPost, "/api/requests", guestTok, gin.H{"date_id": date.Data.ID, "host_id": hostID}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", created.Data.Status)
	assert.Nil(t, created.Data.ChatID)
	reqPath := fmt.Sprintf("/api/requests/%d", created.Data.ID)

	var dup map[string]any
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/requests", guestTok, gin.H{"date_id": date.Data.ID}, &dup))
	assert.Equal(t, "ALREADY_EXISTS", dup["code"])

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, reqPath+"/accept", guestTok, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, reqPath+"/status", hostTok, gin.H{"status": "pending"}, nil))

	var accepted struct {
		Data struct {
			Status string `json:"status"`
			ChatID *uint  `json:"chat_id"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, reqPath+"/accept", hostTok, nil, &accepted))
	assert.Equal(t, "accepted", accepted.Data.Status)
	require.NotNil(t, accepted.Data.ChatID)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPut, reqPath+"/reject", hostTok, nil, nil))

	chatPath := fmt.Sprintf("/api/chats/%d", *accepted.Data.ChatID)
	live := s.stream(chatPath+"/messages/stream", guestTok)
	ev, data := live.next(t)
	assert.Equal(t, "messages", ev)
	assert.JSONEq(t, `[]`, data)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, chatPath+"/messages", hostTok, gin.H{"text": "Hi!"}, nil))
	ev, data = live.next(t)
	assert.Equal(t, "messages", ev)
	var msgs []struct {
		Text     string `json:"text"`
		SenderID uint   `json:"sender_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi!", msgs[0].Text)
	assert.Equal(t, hostID, msgs[0].SenderID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, chatPath+"/messages", guestTok, gin.H{"text": "   "}, nil))

	var page struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, chatPath+"/messages?limit=10", guestTok, nil, &page))
	require.Len(t, page.Data, 1)

	var grouped struct {
		Data []struct {
			Key   string           `json:"key"`
			Items []map[string]any `json:"items"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/requests?grouped=true", guestTok, nil, &grouped))
	require.Len(t, grouped.Data, 1)
	assert.Equal(t, utils.BucketToday, grouped.Data[0].Key)
	assert.Len(t, grouped.Data[0].Items, 1)

	var inbox struct {
		Data []struct {
			Type string `json:"type"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/notifications", guestTok, nil, &inbox))
	types := make([]string, 0, len(inbox.Data))
	for _, n := range inbox.Data {
		types = append(types, n.Type)
	}
	assert.Contains(t, types, "request_accepted")
	assert.Contains(t, types, "message_received")
}

func TestTypingOverHTTP(t *testing.T) {
	s := newTestServer(t)
	hostTok, _ := s.register("minh@example.com", "Minh", "male")
	guestTok, _ := s.register("lan@example.com", "Lan", "female")

	var date struct {
		Data struct{ ID uint } `json:"data"`
	}
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/dates", hostTok, gin.H{"title": "Walk", "scheduled_at": time.Now()}, &date))
	var req struct {
		Data struct{ ID uint } `json:"data"`
	}
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/requests", guestTok, gin.H{"date_id": date.Data.ID}, &req))
	var acc struct {
		Data struct {
			ChatID uint `json:"chat_id"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, fmt.Sprintf("/api/requests/%d/status", req.Data.ID), hostTok, gin.H{"status": "accepted"}, &acc))

	typingPath := fmt.Sprintf("/api/chats/%d/typing", acc.Data.ChatID)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPut, typingPath, hostTok, gin.H{"is_typing": true}, nil))

	var typers struct {
		Data []struct {
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, typingPath, guestTok, nil, &typers))
	require.Len(t, typers.Data, 1)
	assert.Equal(t, "Minh", typers.Data[0].DisplayName)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, typingPath, hostTok, nil, &typers))
	assert.Empty(t, typers.Data)

	outsiderTok, _ := s.register("mai@example.com", "Mai", "female")
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, typingPath, outsiderTok, nil, nil))
}

func TestPresenceFollowsConnection(t *testing.T) {
	s := newTestServer(t)
	tok, id := s.register("lan@example.com", "Lan", "female")
	path := fmt.Sprintf("/api/presence/%d", id)

	state := func() string {
		var rec struct {
			Data struct {
				State string `json:"state"`
			} `json:"data"`
		}
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, tok, nil, &rec))
		return rec.Data.State
	}
	assert.Equal(t, "offline", state())

	conn := s.stream("/api/presence/connect", tok)
	ev, _ := conn.next(t)
	assert.Equal(t, "presence", ev)
	assert.Equal(t, "online", state())

	conn.cancel()
	require.Eventually(t, func() bool { return state() == "offline" }, 3*time.Second, 20*time.Millisecond)
}

func TestAdminRoutesNeedAdmin(t *testing.T) {
	s := newTestServer(t)
	tok, _ := s.register("lan@example.com", "Lan", "female")
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/admin/presence/reset", tok, nil, nil))
}

func TestEmptyListsAreArrays(t *testing.T) {
	s := newTestServer(t)
	tok, _ := s.register("lan@example.com", "Lan", "female")

	for _, path := range []string{
		"/api/requests?role=requester",
		"/api/requests?role=host",
		"/api/chats",
		"/api/dates",
		"/api/notifications",
	} {
		var body map[string]json.RawMessage
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, tok, nil, &body), path)
		assert.JSONEq(t, `[]`, string(body["data"]), path)
	}
}
