package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/semaphore"

	"feedforwarder/internal/config"
	"feedforwarder/internal/model"
	"feedforwarder/internal/scheduler"
	"feedforwarder/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID    int64
	Text      string
	ParseMode string
	Keyboard  bool
}

type mockAPI struct {
	mu       sync.Mutex
	sent     []sentMsg
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func newMockAPI() *mockAPI {
	return &mockAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{
			ChatID:    msg.ChatID,
			Text:      msg.Text,
			ParseMode: msg.ParseMode,
			Keyboard:  msg.ReplyMarkup != nil,
		})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockAPI) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	if r.Method != http.MethodPost {
		return nil, errors.New("wrong HTTP method required POST")
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) lastSent() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockAPI) requestsOf(match func(tgbotapi.Chattable) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if match(r) {
			n++
		}
	}
	return n
}

type mockChecker struct {
	mu     sync.Mutex
	report scheduler.SourceReport
	err    error
	got    []model.Source
	// block, when set, is waited on before returning.
	block   chan struct{}
	entered chan struct{}
}

func (c *mockChecker) CheckSource(ctx context.Context, src model.Source) (scheduler.SourceReport, error) {
	c.mu.Lock()
	c.got = append(c.got, src)
	c.mu.Unlock()

	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return scheduler.SourceReport{}, ctx.Err()
		}
	}
	return c.report, c.err
}

// --- helpers ---

const (
	ownerID = 100
	otherID = 200
	adminID = 999
)

func newTestBot(t *testing.T) (*Bot, *mockAPI, *storage.DB) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := newMockAPI()
	b := &Bot{
		api:     api,
		store:   store,
		cfg:     &config.Config{AdminUserIDs: []int64{adminID}},
		limiter: newLimiter(1000),
		checks:  semaphore.NewWeighted(maxConcurrentChecks),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store
}

func command(chatID, userID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID},
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		},
	}
}

func run(b *Bot, userID int64, text string) {
	b.handleCommand(context.Background(), command(userID, userID, text))
}

func seedSource(t *testing.T, store *storage.DB, telegramID int64, url string) *model.Source {
	t.Helper()
	ctx := context.Background()
	user, err := store.UpsertUser(ctx, telegramID)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	src := &model.Source{UserID: user.ID, URL: url}
	if ok, err := store.CreateSource(ctx, src); err != nil || !ok {
		t.Fatalf("seed source: ok=%v err=%v", ok, err)
	}
	return src
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- transport ---

func TestSend(t *testing.T) {
	b, api, _ := newTestBot(t)

	if err := b.Send(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := sentMsg{ChatID: 42, Text: "<b>hi</b>", ParseMode: tgbotapi.ModeHTML}
	if diff := cmp.Diff(want, api.lastSent()); diff != "" {
		t.Errorf("sent message mismatch (-want +got):\n%s", diff)
	}
}

func TestSendErrors(t *testing.T) {
	t.Run("api failure", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		api.sendErr = errors.New("Bad Request: chat not found")
		if err := b.Send(context.Background(), 42, "x"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("rate limit wait honours context", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.limiter = newLimiter(0.001)
		if err := b.Send(context.Background(), 42, "first"); err != nil {
			t.Fatalf("first send: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := b.Send(ctx, 42, "second"); err == nil {
			t.Fatal("expected rate limit error, got nil")
		}
		if diff := cmp.Diff(1, api.sentCount()); diff != "" {
			t.Errorf("sent count mismatch (-want +got):\n%s", diff)
		}
	})
}

// --- commands ---

func TestHandleBasicCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "/start", want: "Welcome to Feed Forwarder Bot"},
		{text: "/help", want: "/addsource <url> [keywords...]"},
		{text: "/getchatid", want: "Current chat ID: 100"},
		{text: "/status", want: "Your Telegram ID: 100\nSources: 0"},
		{text: "/unknown", want: "Unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, api, _ := newTestBot(t)
			run(b, ownerID, tt.text)
			requireContains(t, api.lastText(), tt.want)
		})
	}
}

func TestHandleCommandRegistersUser(t *testing.T) {
	b, _, store := newTestBot(t)
	run(b, ownerID, "/start")
	run(b, ownerID, "/help")
	run(b, otherID, "/start")

	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if diff := cmp.Diff(2, st.Users); diff != "" {
		t.Errorf("user count mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleAddSource(t *testing.T) {
	ctx := context.Background()

	t.Run("empty args", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/addsource")
		requireContains(t, api.lastText(), "Usage: /addsource")
	})

	t.Run("invalid url", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/addsource example.com")
		requireContains(t, api.lastText(), "invalid URL")
	})

	t.Run("with keywords", func(t *testing.T) {
		b, api, store := newTestBot(t)
		run(b, ownerID, "/addsource https://example.com/feed.rss launch orbit")
		reply := api.lastText()
		requireContains(t, reply, "Source added: #1 https://example.com/feed.rss (feed)")
		requireContains(t, reply, "Filters: launch, orbit")

		filters, err := store.ListFilters(ctx, 1)
		if err != nil {
			t.Fatalf("list filters: %v", err)
		}
		var got []string
		for _, f := range filters {
			got = append(got, f.Keyword)
		}
		if diff := cmp.Diff([]string{"launch", "orbit"}, got); diff != "" {
			t.Errorf("filters mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/addsource https://example.com/page")
		run(b, ownerID, "/addsource https://example.com/page")
		requireContains(t, api.lastText(), "already exists")
	})

	t.Run("same url for another user", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/addsource https://example.com/page")
		run(b, otherID, "/addsource https://example.com/page")
		requireContains(t, api.lastText(), "Source added")
	})
}

func TestHandleRemoveSource(t *testing.T) {
	ctx := context.Background()

	t.Run("usage", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/removesource")
		requireContains(t, api.lastText(), "Usage: /removesource")
	})

	t.Run("other user's source", func(t *testing.T) {
		b, api, store := newTestBot(t)
		seedSource(t, store, otherID, "https://example.com/rss")
		run(b, ownerID, "/removesource https://example.com/rss")
		requireContains(t, api.lastText(), "Source not found")
	})

	t.Run("success cascades", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")
		run(b, ownerID, "/addtarget https://example.com/rss 555")
		run(b, ownerID, "/addfilter https://example.com/rss launch")

		run(b, ownerID, "/removesource https://example.com/rss")
		requireContains(t, api.lastText(), "Source https://example.com/rss removed.")

		targets, _ := store.ListTargets(ctx, src.ID)
		filters, _ := store.ListFilters(ctx, src.ID)
		if len(targets) != 0 || len(filters) != 0 {
			t.Errorf("cascade incomplete: targets=%d filters=%d", len(targets), len(filters))
		}
	})
}

func TestHandleListSources(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		run(b, ownerID, "/listsources")
		requireContains(t, api.lastText(), "no sources yet")
		if api.lastSent().Keyboard {
			t.Error("empty list should have no keyboard")
		}
	})

	t.Run("only own sources with keyboard", func(t *testing.T) {
		b, api, store := newTestBot(t)
		seedSource(t, store, ownerID, "https://a.example.com/rss")
		seedSource(t, store, otherID, "https://b.example.com/rss")

		run(b, ownerID, "/listsources")
		reply := api.lastSent()
		requireContains(t, reply.Text, "https://a.example.com/rss")
		if strings.Contains(reply.Text, "https://b.example.com/rss") {
			t.Errorf("foreign source listed:\n%s", reply.Text)
		}
		if !reply.Keyboard {
			t.Error("expected inline keyboard")
		}
	})
}

func TestHandleTargets(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	src := seedSource(t, store, ownerID, "https://example.com/rss")

	steps := []struct {
		text string
		want string
	}{
		{text: "/addtarget https://example.com/rss", want: "Usage: /addtarget"},
		{text: "/addtarget https://example.com/rss abc", want: "invalid chat ID"},
		{text: "/addtarget https://unknown.example.com/rss 1", want: "Source not found"},
		{text: "/listtargets https://example.com/rss", want: "No targets for https://example.com/rss"},
		{text: "/addtarget https://example.com/rss -100123", want: "Target added: https://example.com/rss -> -100123"},
		{text: "/addtarget https://example.com/rss -100123", want: "already receives"},
		{text: "/addtarget https://example.com/rss 555", want: "Target added"},
		{text: "/listtargets https://example.com/rss", want: "Targets for https://example.com/rss:\n\n- -100123\n- 555"},
		{text: "/removetarget https://example.com/rss 555", want: "Target removed: 555"},
		{text: "/removetarget https://example.com/rss 555", want: "Target not found."},
	}
	for _, s := range steps {
		run(b, ownerID, s.text)
		requireContains(t, api.lastText(), s.want)
	}

	targets, err := store.ListTargets(ctx, src.ID)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if diff := cmp.Diff(1, len(targets)); diff != "" {
		t.Errorf("target count mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFilters(t *testing.T) {
	b, api, store := newTestBot(t)
	seedSource(t, store, ownerID, "https://example.com/rss")

	steps := []struct {
		text string
		want string
	}{
		{text: "/addfilter https://example.com/rss", want: "Usage: /addfilter"},
		{text: "/listfilters https://example.com/rss", want: "every article is forwarded"},
		{text: "/addfilter https://example.com/rss rocket launch", want: `Filter added: "rocket launch"`},
		{text: "/addfilter https://example.com/rss rocket launch", want: "already set"},
		{text: "/addfilter https://example.com/rss orbit", want: "Filter added"},
		{text: "/listfilters https://example.com/rss", want: "Filters for https://example.com/rss:\n\n- rocket launch\n- orbit"},
		{text: "/removefilter https://example.com/rss rocket launch", want: `Filter removed: "rocket launch"`},
		{text: "/removefilter https://example.com/rss rocket launch", want: "Filter not found."},
		{text: "/listfilters https://other.example.com/rss", want: "Source not found"},
	}
	for _, s := range steps {
		run(b, ownerID, s.text)
		requireContains(t, api.lastText(), s.want)
	}
}

func TestHandleCheck(t *testing.T) {
	t.Run("without checker", func(t *testing.T) {
		b, api, store := newTestBot(t)
		seedSource(t, store, ownerID, "https://example.com/rss")
		run(b, ownerID, "/check https://example.com/rss")
		requireContains(t, api.lastText(), "not available")
	})

	t.Run("reports result", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")
		checker := &mockChecker{report: scheduler.SourceReport{Articles: 3, Delivered: 1, Filtered: 2}}
		b.SetChecker(checker)

		run(b, ownerID, "/check https://example.com/rss")
		b.Wait()
		requireContains(t, api.lastText(), "3 article(s), 1 delivered, 2 filtered out")
		if diff := cmp.Diff([]model.Source{*src}, checker.got); diff != "" {
			t.Errorf("checked sources mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		b, api, store := newTestBot(t)
		seedSource(t, store, ownerID, "https://example.com/rss")
		b.SetChecker(&mockChecker{err: fmt.Errorf("list targets: %w", storage.ErrStore)})

		run(b, ownerID, "/check https://example.com/rss")
		b.Wait()
		if diff := cmp.Diff(msgInternalError, api.lastText()); diff != "" {
			t.Errorf("reply mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCheckRunsInBackground(t *testing.T) {
	b, api, store := newTestBot(t)
	seedSource(t, store, ownerID, "https://example.com/rss")
	release := make(chan struct{})
	checker := &mockChecker{
		report:  scheduler.SourceReport{Articles: 1, Delivered: 1},
		block:   release,
		entered: make(chan struct{}, maxConcurrentChecks+1),
	}
	b.SetChecker(checker)

	for i := 0; i < maxConcurrentChecks; i++ {
		run(b, ownerID, "/check https://example.com/rss")
	}
	for i := 0; i < maxConcurrentChecks; i++ {
		select {
		case <-checker.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("check did not start")
		}
	}

	// Other commands are answered while checks are in flight.
	run(b, otherID, "/getchatid")
	requireContains(t, api.lastText(), "Current chat ID: 200")

	run(b, ownerID, "/check https://example.com/rss")
	requireContains(t, api.lastText(), "Too many checks are running")

	close(release)
	b.Wait()
	requireContains(t, api.lastText(), "1 delivered")

	checker.mu.Lock()
	calls := len(checker.got)
	checker.mu.Unlock()
	if diff := cmp.Diff(maxConcurrentChecks, calls); diff != "" {
		t.Errorf("check calls mismatch (-want +got):\n%s", diff)
	}
}

// brokenFilterStore fails the piecewise writes and, when failAdd is set,
// the combined source insert too.
type brokenFilterStore struct {
	storage.Storage
	failAdd bool
}

func (s *brokenFilterStore) CreateFilter(context.Context, *model.Filter) (bool, error) {
	return false, fmt.Errorf("insert filter: %w", storage.ErrStore)
}

func (s *brokenFilterStore) CreateSourceWithFilters(ctx context.Context, src *model.Source, keywords []string) (bool, error) {
	if s.failAdd {
		return false, fmt.Errorf("insert filter: %w", storage.ErrStore)
	}
	return s.Storage.CreateSourceWithFilters(ctx, src, keywords)
}

func TestHandleAddSourceIsAtomic(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	broken := &brokenFilterStore{Storage: store, failAdd: true}
	b.store = broken

	run(b, ownerID, "/addsource https://example.com/feed.rss launch")
	if diff := cmp.Diff(msgInternalError, api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if diff := cmp.Diff(0, st.Sources); diff != "" {
		t.Errorf("source left behind (-want +got):\n%s", diff)
	}

	broken.failAdd = false
	run(b, ownerID, "/addsource https://example.com/feed.rss launch")
	requireContains(t, api.lastText(), "Source added")

	src, err := store.GetSource(ctx, 1, "https://example.com/feed.rss")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	filters, err := store.ListFilters(ctx, src.ID)
	if err != nil {
		t.Fatalf("list filters: %v", err)
	}
	if diff := cmp.Diff(1, len(filters)); diff != "" {
		t.Errorf("filter count mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleAdminPanel(t *testing.T) {
	b, api, store := newTestBot(t)
	seedSource(t, store, ownerID, "https://example.com/rss")

	run(b, ownerID, "/adminpanel")
	requireContains(t, api.lastText(), "not authorized")

	run(b, adminID, "/stats")
	if diff := cmp.Diff("Admin panel:\n- Users: 2\n- Sources: 1\n- Targets: 0", api.lastText()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

// --- callbacks ---

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func isCallbackAck(c tgbotapi.Chattable) bool {
	_, ok := c.(tgbotapi.CallbackConfig)
	return ok
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("filters of own source", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")
		if _, err := store.CreateFilter(ctx, &model.Filter{SourceID: src.ID, Keyword: "launch"}); err != nil {
			t.Fatalf("create filter: %v", err)
		}

		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("filters:%d", src.ID)))
		requireContains(t, api.lastText(), "- launch")
		if diff := cmp.Diff(1, api.requestsOf(isCallbackAck)); diff != "" {
			t.Errorf("callback ack count (-want +got):\n%s", diff)
		}
	})

	t.Run("targets of own source", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")
		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("targets:%d", src.ID)))
		requireContains(t, api.lastText(), "No targets")
	})

	t.Run("foreign source", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, otherID, "https://example.com/rss")
		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("delete:%d", src.ID)))
		requireContains(t, api.lastText(), "Source not found")

		if _, err := store.GetSourceByID(ctx, src.ID); err != nil {
			t.Errorf("foreign source was deleted: %v", err)
		}
	})

	t.Run("delete with confirmation", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")

		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("delete_confirm:%d", src.ID)))
		confirm := api.lastSent()
		requireContains(t, confirm.Text, "cannot be undone")
		if !confirm.Keyboard {
			t.Error("confirmation should carry buttons")
		}

		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("delete:%d", src.ID)))
		requireContains(t, api.lastText(), "removed")
		if _, err := store.GetSourceByID(ctx, src.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("source still present: %v", err)
		}
	})

	t.Run("check button", func(t *testing.T) {
		b, api, store := newTestBot(t)
		src := seedSource(t, store, ownerID, "https://example.com/rss")
		b.SetChecker(&mockChecker{})
		b.handleCallback(ctx, callback(ownerID, fmt.Sprintf("check:%d", src.ID)))
		b.Wait()
		requireContains(t, api.lastText(), "No articles found")
	})

	t.Run("noop and malformed send nothing", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.handleCallback(ctx, callback(ownerID, "noop:0"))
		b.handleCallback(ctx, callback(ownerID, "garbage"))
		if diff := cmp.Diff(0, api.sentCount()); diff != "" {
			t.Errorf("sent count mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(2, api.requestsOf(isCallbackAck)); diff != "" {
			t.Errorf("callback ack count (-want +got):\n%s", diff)
		}
	})
}

// --- inbound ---

func TestRunHandlesUpdatesUntilCancelled(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{Message: command(ownerID, ownerID, "/getchatid")}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "just chatting", Chat: &tgbotapi.Chat{ID: ownerID}, From: &tgbotapi.User{ID: ownerID}}}
	waitFor(t, func() bool { return api.sentCount() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	requireContains(t, api.lastText(), "Current chat ID: 100")
	api.mu.Lock()
	stopped := api.stopped
	api.mu.Unlock()
	if !stopped {
		t.Error("expected StopReceivingUpdates to be called")
	}
	deletes := api.requestsOf(func(c tgbotapi.Chattable) bool {
		_, ok := c.(tgbotapi.DeleteWebhookConfig)
		return ok
	})
	if diff := cmp.Diff(1, deletes); diff != "" {
		t.Errorf("delete webhook requests (-want +got):\n%s", diff)
	}
}

func TestWebhookHandler(t *testing.T) {
	b, api, _ := newTestBot(t)
	h := b.WebhookHandler(context.Background())

	body, err := json.Marshal(tgbotapi.Update{UpdateID: 1, Message: command(ownerID, ownerID, "/getchatid")})
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, bytes.NewReader(body)))
	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	b.Wait()
	if diff := cmp.Diff(1, api.sentCount()); diff != "" {
		t.Errorf("sent count mismatch (-want +got):\n%s", diff)
	}
	requireContains(t, api.lastText(), "Current chat ID: 100")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{not json")))
	if diff := cmp.Diff(http.StatusBadRequest, rec.Code); diff != "" {
		t.Errorf("bad body status mismatch (-want +got):\n%s", diff)
	}
}

func TestSetWebhook(t *testing.T) {
	b, api, _ := newTestBot(t)
	if err := b.SetWebhook("https://bot.example.com"); err != nil {
		t.Fatalf("set webhook: %v", err)
	}

	var got string
	api.requestsOf(func(c tgbotapi.Chattable) bool {
		if wh, ok := c.(tgbotapi.WebhookConfig); ok {
			got = wh.URL.String()
		}
		return false
	})
	if diff := cmp.Diff("https://bot.example.com/webhook", got); diff != "" {
		t.Errorf("webhook url mismatch (-want +got):\n%s", diff)
	}
}
