package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	actionFilters       = "filters"
	actionTargets       = "targets"
	actionCheck         = "check"
	actionDeleteConfirm = "delete_confirm"
	actionDelete        = "delete"
	actionNoop          = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, id, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.log.Warn("callback", "data", cb.Data, "error", err)
		return
	}
	if action == actionNoop {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	user, err := b.store.UpsertUser(ctx, cb.From.ID)
	if err != nil {
		b.replyError(chatID, "upsert user", err)
		return
	}

	src, ok := b.resolveSourceByID(ctx, chatID, user, id)
	if !ok {
		return
	}

	switch action {
	case actionFilters:
		b.replyFilters(ctx, chatID, src)
	case actionTargets:
		b.replyTargets(ctx, chatID, src)
	case actionCheck:
		b.checkSource(ctx, chatID, src)
	case actionDeleteConfirm:
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete %s with its targets and filters? This cannot be undone.", src.URL))
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("%s:%d", actionDelete, src.ID)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", actionNoop+":0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send delete confirmation", "error", err)
		}
	case actionDelete:
		b.removeSource(ctx, chatID, src)
	}
}
