package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedforwarder/internal/fetcher"
	"feedforwarder/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Feed Forwarder Bot!

Register RSS feeds or web pages, choose the chats they go to and, optionally, keywords that an article must contain.

Quick start:
1. /addsource <url> - add a source
2. /addtarget <url> <chat_id> - route it to a chat (see /getchatid)
3. /addfilter <url> <keyword> - only forward matching articles

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleGetChatID(chatID int64) {
	b.reply(chatID, fmt.Sprintf("Current chat ID: %d", chatID))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, user *model.User) {
	sources, err := b.store.ListSources(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, "list sources", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Your Telegram ID: %d\nSources: %d", user.TelegramID, len(sources)))
}

func (b *Bot) handleAddSource(ctx context.Context, chatID int64, user *model.User, args string) {
	url, keywords, err := ParseAddSourceArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /addsource <url> [keywords...]\n"+err.Error())
		return
	}

	src := &model.Source{UserID: user.ID, URL: url}
	created, err := b.store.CreateSourceWithFilters(ctx, src, keywords)
	if err != nil {
		b.replyError(chatID, "create source", err)
		return
	}
	if !created {
		b.reply(chatID, fmt.Sprintf("Source %s already exists.", url))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Source added: #%d %s (%s)", src.ID, src.URL, fetcher.Classify(src.URL))
	if len(keywords) > 0 {
		fmt.Fprintf(&sb, "\nFilters: %s", strings.Join(keywords, ", "))
	}
	fmt.Fprintf(&sb, "\nNo targets yet. Use /addtarget %s <chat_id> to start forwarding.", src.URL)
	b.reply(chatID, sb.String())
}

func (b *Bot) handleRemoveSource(ctx context.Context, chatID int64, user *model.User, args string) {
	url, err := ParseURLArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /removesource <url>")
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}
	b.removeSource(ctx, chatID, src)
}

func (b *Bot) removeSource(ctx context.Context, chatID int64, src *model.Source) {
	removed, err := b.store.DeleteSource(ctx, src.ID)
	if err != nil {
		b.replyError(chatID, "delete source", err)
		return
	}
	if !removed {
		b.reply(chatID, msgSourceNotFound)
		return
	}
	b.reply(chatID, fmt.Sprintf("Source %s removed.", src.URL))
}

func (b *Bot) handleListSources(ctx context.Context, chatID int64, user *model.User) {
	sources, err := b.store.ListSources(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, "list sources", err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSourceList(sources))
	msg.DisableWebPagePreview = true
	if len(sources) > 0 {
		msg.ReplyMarkup = sourceKeyboard(sources)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send source list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleAddTarget(ctx context.Context, chatID int64, user *model.User, args string) {
	url, targetChat, err := ParseTargetArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /addtarget <url> <chat_id>\n"+err.Error())
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}

	created, err := b.store.CreateTarget(ctx, &model.Target{SourceID: src.ID, ChatID: targetChat})
	if err != nil {
		b.replyError(chatID, "create target", err)
		return
	}
	if !created {
		b.reply(chatID, fmt.Sprintf("Chat %d already receives %s.", targetChat, src.URL))
		return
	}
	b.reply(chatID, fmt.Sprintf("Target added: %s -> %d", src.URL, targetChat))
}

func (b *Bot) handleRemoveTarget(ctx context.Context, chatID int64, user *model.User, args string) {
	url, targetChat, err := ParseTargetArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /removetarget <url> <chat_id>\n"+err.Error())
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}

	removed, err := b.store.DeleteTarget(ctx, src.ID, targetChat)
	if err != nil {
		b.replyError(chatID, "delete target", err)
		return
	}
	if !removed {
		b.reply(chatID, "Target not found.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Target removed: %d from %s", targetChat, src.URL))
}

func (b *Bot) handleListTargets(ctx context.Context, chatID int64, user *model.User, args string) {
	url, err := ParseURLArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /listtargets <url>")
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}
	b.replyTargets(ctx, chatID, src)
}

func (b *Bot) replyTargets(ctx context.Context, chatID int64, src *model.Source) {
	targets, err := b.store.ListTargets(ctx, src.ID)
	if err != nil {
		b.replyError(chatID, "list targets", err)
		return
	}
	b.reply(chatID, FormatTargetList(src, targets))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, user *model.User, args string) {
	url, keyword, err := ParseKeywordArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /addfilter <url> <keyword>\n"+err.Error())
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}

	created, err := b.store.CreateFilter(ctx, &model.Filter{SourceID: src.ID, Keyword: keyword})
	if err != nil {
		b.replyError(chatID, "create filter", err)
		return
	}
	if !created {
		b.reply(chatID, fmt.Sprintf("Filter %q is already set for %s.", keyword, src.URL))
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter added: %q for %s", keyword, src.URL))
}

func (b *Bot) handleRemoveFilter(ctx context.Context, chatID int64, user *model.User, args string) {
	url, keyword, err := ParseKeywordArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /removefilter <url> <keyword>\n"+err.Error())
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}

	removed, err := b.store.DeleteFilter(ctx, src.ID, keyword)
	if err != nil {
		b.replyError(chatID, "delete filter", err)
		return
	}
	if !removed {
		b.reply(chatID, "Filter not found.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter removed: %q from %s", keyword, src.URL))
}

func (b *Bot) handleListFilters(ctx context.Context, chatID int64, user *model.User, args string) {
	url, err := ParseURLArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /listfilters <url>")
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}
	b.replyFilters(ctx, chatID, src)
}

func (b *Bot) replyFilters(ctx context.Context, chatID int64, src *model.Source) {
	filters, err := b.store.ListFilters(ctx, src.ID)
	if err != nil {
		b.replyError(chatID, "list filters", err)
		return
	}
	b.reply(chatID, FormatFilterList(src, filters))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, user *model.User, args string) {
	url, err := ParseURLArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <url>")
		return
	}

	src, ok := b.resolveSource(ctx, chatID, user, url)
	if !ok {
		return
	}
	b.checkSource(ctx, chatID, src)
}

func (b *Bot) checkSource(ctx context.Context, chatID int64, src *model.Source) {
	if b.checker == nil {
		b.reply(chatID, "Checking is not available right now.")
		return
	}

	if !b.checks.TryAcquire(1) {
		b.reply(chatID, "Too many checks are running, please try again shortly.")
		return
	}

	// Runs outside the update loop and is covered by Wait.
	b.goHandle(func() {
		defer b.checks.Release(1)

		report, err := b.checker.CheckSource(ctx, *src)
		if err != nil {
			b.replyError(chatID, "check source", err)
			return
		}
		b.reply(chatID, FormatCheckReport(src, report))
	})
}

func (b *Bot) handleAdminPanel(ctx context.Context, chatID int64, user *model.User) {
	if !b.cfg.IsAdmin(user.TelegramID) {
		b.reply(chatID, "You are not authorized to view admin stats.")
		return
	}

	st, err := b.store.Stats(ctx)
	if err != nil {
		b.replyError(chatID, "stats", err)
		return
	}
	b.reply(chatID, FormatStats(st))
}
