package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNotifier_FiltersByEventType(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventDeposit, At: at}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventRightLiquidated, RightID: 7, At: at}))
	assert.Equal(t, []string{"Right #7 liquidated"}, s.titles)

	custom := NewNotifier([]Sender{s}, []string{" pool.deposit "}, slog.New(slog.DiscardHandler))
	assert.True(t, custom.Wants(domain.EventDeposit))
	assert.False(t, custom.Wants(domain.EventBreakerTripped))
}

func TestNotifier_NoSendersWantsNothing(t *testing.T) {
	n := NewNotifier(nil, nil, slog.New(slog.DiscardHandler))
	assert.False(t, n.Wants(domain.EventBreakerTripped))
	assert.NoError(t, n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventBreakerTripped}))
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad: boom")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestFormat(t *testing.T) {
	title, body := Format(domain.Event{
		Type:    domain.EventBreakerTripped,
		RightID: 3,
		Actor:   common.HexToAddress("0xd1"),
		Amount:  domain.Units(1_500),
		Detail:  map[string]any{"window_loss": "1500", "threshold": "1000"},
		At:      at,
	})
	assert.Equal(t, "Circuit breaker tripped", title)
	assert.Contains(t, body, "right: 3\n")
	assert.Contains(t, body, "actor: 0x00000000000000000000000000000000000000d1")
	assert.Less(t, strings.Index(body, "threshold"), strings.Index(body, "window_loss"))
	assert.Contains(t, body, "at: 2025-03-01 12:00:00Z")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.ErrorContains(t, err, "discord: unexpected status 429")
}
