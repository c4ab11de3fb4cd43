// Package bot implements the Telegram command surface and the outbound
// message transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"feedforwarder/internal/config"
	"feedforwarder/internal/model"
	"feedforwarder/internal/scheduler"
	"feedforwarder/internal/storage"
)

// Long polling holds a request open for pollTimeout seconds, so the HTTP
// client must allow more than that.
const (
	pollTimeout   = 60
	clientTimeout = (pollTimeout + 15) * time.Second
)

// maxConcurrentChecks bounds on-demand checks running in the background.
const maxConcurrentChecks = 4

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Checker runs the delivery pipeline for a single source on demand.
type Checker interface {
	CheckSource(ctx context.Context, src model.Source) (scheduler.SourceReport, error)
}

// Bot is the Telegram bot that handles user commands and delivers articles.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	checker Checker
	limiter *rate.Limiter
	checks  *semaphore.Weighted
	log     *slog.Logger

	// wg tracks handlers running outside the update loop.
	wg sync.WaitGroup
}

// New creates a Bot for the configured token.
func New(cfg *config.Config, store storage.Storage, log *slog.Logger) (*Bot, error) {
	client := &http.Client{Timeout: clientTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized on telegram", "username", api.Self.UserName)

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		limiter: newLimiter(cfg.SendRate),
		checks:  semaphore.NewWeighted(maxConcurrentChecks),
		log:     log,
	}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Wait blocks until background handlers have returned. Call it after the
// update source has stopped and before closing the store.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// goHandle runs fn in the background, tracked by Wait.
func (b *Bot) goHandle(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// SetChecker enables the /check command and the check button.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// Send delivers an HTML-formatted message to a chat. It waits for the shared
// send rate limit and gives up when ctx is done.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limit: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Run receives updates by long polling, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	// getUpdates is rejected while a webhook is registered.
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.log.Warn("delete webhook", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, update.Message)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

// replyError logs an internal failure and answers with a generic sentence.
func (b *Bot) replyError(chatID int64, op string, err error) {
	b.log.Error(op, "chat_id", chatID, "error", err)
	b.reply(chatID, msgInternalError)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", msg.From.ID)

	user, err := b.store.UpsertUser(ctx, msg.From.ID)
	if err != nil {
		b.replyError(chatID, "upsert user", err)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "getchatid":
		b.handleGetChatID(chatID)
	case "status":
		b.handleStatus(ctx, chatID, user)
	case "addsource":
		b.handleAddSource(ctx, chatID, user, args)
	case "removesource":
		b.handleRemoveSource(ctx, chatID, user, args)
	case "listsources":
		b.handleListSources(ctx, chatID, user)
	case "addtarget":
		b.handleAddTarget(ctx, chatID, user, args)
	case "removetarget":
		b.handleRemoveTarget(ctx, chatID, user, args)
	case "listtargets":
		b.handleListTargets(ctx, chatID, user, args)
	case "addfilter":
		b.handleAddFilter(ctx, chatID, user, args)
	case "removefilter":
		b.handleRemoveFilter(ctx, chatID, user, args)
	case "listfilters":
		b.handleListFilters(ctx, chatID, user, args)
	case actionCheck:
		b.handleCheck(ctx, chatID, user, args)
	case "adminpanel", "stats":
		b.handleAdminPanel(ctx, chatID, user)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// resolveSource finds a source of the user by URL, replying when it cannot.
func (b *Bot) resolveSource(ctx context.Context, chatID int64, user *model.User, url string) (*model.Source, bool) {
	src, err := b.store.GetSource(ctx, user.ID, url)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, msgSourceNotFound)
		return nil, false
	}
	if err != nil {
		b.replyError(chatID, "get source", err)
		return nil, false
	}
	return src, true
}

// resolveSourceByID finds a source by ID and checks that the user owns it.
func (b *Bot) resolveSourceByID(ctx context.Context, chatID int64, user *model.User, id int64) (*model.Source, bool) {
	src, err := b.store.GetSourceByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && src.UserID != user.ID) {
		b.reply(chatID, msgSourceNotFound)
		return nil, false
	}
	if err != nil {
		b.replyError(chatID, "get source", err)
		return nil, false
	}
	return src, true
}
