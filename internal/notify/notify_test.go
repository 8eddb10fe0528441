package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiver-wire/internal/domain"
)

func runCompleted(leagueID string) domain.WaiverEvent {
	return domain.WaiverEvent{
		Type:     domain.EventWaiverRunCompleted,
		LeagueID: leagueID,
		RunID:    "run-" + leagueID,
		Summary: &domain.RunSummary{
			Processed:  2,
			Successful: 1,
			Failed:     1,
			ByReason:   map[domain.FailureReason]int{domain.ReasonOutbid: 1},
			ByTeam: map[string]*domain.TeamSummary{
				"Y": {TeamID: "Y", FAABSpent: 20, Successful: []domain.ClaimOutcome{
					{ClaimID: "cy", TeamID: "Y", AddPlayerID: "P", BidAmount: 20, Status: domain.ClaimStatusSuccessful},
				}},
				"X": {TeamID: "X", Failed: []domain.ClaimOutcome{
					{ClaimID: "cx", TeamID: "X", AddPlayerID: "P", BidAmount: 18, Status: domain.ClaimStatusFailed, Reason: domain.ReasonOutbid},
				}},
			},
		},
		OccurredAt: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.WaiverEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var e domain.WaiverEvent
	require.NoError(t, json.Unmarshal(msg, &e))
	return e
}

func TestHub_FiltersByLeague(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	hub := NewHub(nil, logger)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	all := dial(t, srv, "")
	l2 := dial(t, srv, "?league=L2")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	err := hub.Publish(context.Background(), []domain.WaiverEvent{runCompleted("L1"), runCompleted("L2")})
	require.NoError(t, err)

	assert.Equal(t, "L1", readEvent(t, all).LeagueID)
	assert.Equal(t, "L2", readEvent(t, all).LeagueID)

	got := readEvent(t, l2)
	assert.Equal(t, "L2", got.LeagueID)
	assert.Equal(t, domain.EventWaiverRunCompleted, got.Type)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Processed)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	hub := NewHub(nil, logger)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	hub := NewHub(&cfg, logger)
	defer hub.Close()

	c := &client{leagueID: "L1", send: make(chan []byte, 1), done: make(chan struct{})}
	hub.register(c)

	events := []domain.WaiverEvent{runCompleted("L1"), runCompleted("L1")}
	require.NoError(t, hub.Publish(context.Background(), events))

	assert.Equal(t, 0, hub.Clients())
	select {
	case <-c.done:
	default:
		t.Fatal("slow subscriber not closed")
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "subscriber too slow, disconnecting", hook.LastEntry().Message)
}

func TestHub_CloseRejectsNewSubscribers(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	hub := NewHub(nil, logger)
	require.NoError(t, hub.Close())

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NoError(t, hub.Publish(context.Background(), []domain.WaiverEvent{runCompleted("L1")}))
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		id      string
		token   string
		wantErr bool
	}{
		{"api", "https://discord.com/api/webhooks/123/abc", "123", "abc", false},
		{"versioned", "https://discord.com/api/v10/webhooks/123/abc/", "123", "abc", false},
		{"missing token", "https://discord.com/api/webhooks/123", "", "", true},
		{"not a webhook", "https://example.com/hooks/123/abc", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, token, err := parseWebhookURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.id || token != tt.token {
				t.Errorf("got (%s, %s), want (%s, %s)", id, token, tt.id, tt.token)
			}
		})
	}
}

func TestBuildRunEmbed(t *testing.T) {
	embed := buildRunEmbed(runCompleted("L1"))

	assert.Equal(t, "Waiver Results: L1", embed.Title)
	assert.Contains(t, embed.Description, "2 processed")
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "X (0/1)", embed.Fields[0].Name)
	assert.Equal(t, "- **P** ($18) (OUTBID)\n", embed.Fields[0].Value)
	assert.Equal(t, "Y (1/1)", embed.Fields[1].Name)
	assert.Equal(t, "+ **P** ($20)\n", embed.Fields[1].Value)
	assert.Equal(t, "Run run-L1", embed.Footer.Text)
}

func TestTruncateField(t *testing.T) {
	short := "+ **P** ($20)\n"
	assert.Equal(t, short, truncateField(short))

	// Multi-byte runes straddle the cut point.
	long := strings.Repeat("é", maxFieldValue)
	got := truncateField(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxFieldValue)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("é", (maxFieldValue-3)/2)+"...", got)
}

func TestDiscordSink_PostsRunResults(t *testing.T) {
	var (
		mu     sync.Mutex
		paths  []string
		bodies []discordgo.WebhookParams
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var params discordgo.WebhookParams
		_ = json.Unmarshal(body, &params)

		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, params)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	saved := discordgo.EndpointWebhooks
	discordgo.EndpointWebhooks = srv.URL + "/webhooks/"
	defer func() { discordgo.EndpointWebhooks = saved }()

	logger, _ := logtest.NewNullLogger()
	sink, err := NewDiscordSink("https://discord.com/api/webhooks/123/tok", logger)
	require.NoError(t, err)

	events := []domain.WaiverEvent{
		{Type: domain.EventClaimResolved, LeagueID: "L1", ClaimID: "cx"},
		runCompleted("L1"),
	}
	require.NoError(t, sink.Publish(context.Background(), events))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "/webhooks/123/tok", paths[0])
	require.Len(t, bodies[0].Embeds, 1)
	assert.Equal(t, "Waiver Results: L1", bodies[0].Embeds[0].Title)
}

func TestDiscordSink_ReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad","code":50006}`))
	}))
	defer srv.Close()

	saved := discordgo.EndpointWebhooks
	discordgo.EndpointWebhooks = srv.URL + "/webhooks/"
	defer func() { discordgo.EndpointWebhooks = saved }()

	sink, err := NewDiscordSink("https://discord.com/api/webhooks/123/tok", nil)
	require.NoError(t, err)

	err = sink.Publish(context.Background(), []domain.WaiverEvent{runCompleted("L1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute webhook")
}
