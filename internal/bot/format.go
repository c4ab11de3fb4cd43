package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedforwarder/internal/fetcher"
	"feedforwarder/internal/model"
	"feedforwarder/internal/scheduler"
)

const (
	msgInternalError  = "Something went wrong, please try again later."
	msgSourceNotFound = "Source not found. Use /listsources to see your sources."
)

const helpText = `Feed Forwarder Bot commands:

/start - welcome message
/help - show this help
/getchatid - show the current chat ID
/status - show your Telegram ID and source count

Sources:
/addsource <url> [keywords...] - add an RSS feed or web page, optionally with keyword filters
/removesource <url> - remove a source with its targets and filters
/listsources - list your sources
/check <url> - poll a source now

Targets:
/addtarget <url> <chat_id> - forward a source to a chat
/removetarget <url> <chat_id> - stop forwarding to a chat
/listtargets <url> - list the chats of a source

Filters:
/addfilter <url> <keyword> - only forward articles containing the keyword
/removefilter <url> <keyword> - remove a keyword
/listfilters <url> - list the keywords of a source

/adminpanel - usage statistics (admins only)`

// FormatSourceList formats the sources of a user.
func FormatSourceList(sources []model.Source) string {
	if len(sources) == 0 {
		return "You have no sources yet. Use /addsource <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your sources:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "\n#%d %s (%s)", s.ID, s.URL, fetcher.Classify(s.URL))
	}
	return b.String()
}

// FormatTargetList formats the delivery chats of a source.
func FormatTargetList(src *model.Source, targets []model.Target) string {
	if len(targets) == 0 {
		return fmt.Sprintf("No targets for %s.\nUse /addtarget %s <chat_id> to add one.", src.URL, src.URL)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Targets for %s:\n", src.URL)
	for _, t := range targets {
		fmt.Fprintf(&b, "\n- %d", t.ChatID)
	}
	return b.String()
}

// FormatFilterList formats the keywords of a source.
func FormatFilterList(src *model.Source, filters []model.Filter) string {
	if len(filters) == 0 {
		return fmt.Sprintf("No filters for %s, every article is forwarded.", src.URL)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Filters for %s:\n", src.URL)
	for _, f := range filters {
		fmt.Fprintf(&b, "\n- %s", f.Keyword)
	}
	return b.String()
}

// FormatCheckReport summarizes an on-demand check of a source.
func FormatCheckReport(src *model.Source, r scheduler.SourceReport) string {
	if r.FetchErr != nil {
		return fmt.Sprintf("Could not read %s right now. It will be retried on the next poll.", src.URL)
	}
	if r.Articles == 0 {
		return fmt.Sprintf("No articles found in %s.", src.URL)
	}
	s := fmt.Sprintf("Checked %s: %d article(s), %d delivered, %d filtered out, %d already sent.",
		src.URL, r.Articles, r.Delivered, r.Filtered, r.Duplicates)
	if r.NoTargets > 0 {
		s += fmt.Sprintf("\n%d article(s) are waiting for a target. Use /addtarget to add one.", r.NoTargets)
	}
	return s
}

// FormatStats formats the admin panel.
func FormatStats(st *model.Stats) string {
	return fmt.Sprintf("Admin panel:\n- Users: %d\n- Sources: %d\n- Targets: %d", st.Users, st.Sources, st.Targets)
}

func sourceKeyboard(sources []model.Source) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("#%d filters", s.ID), fmt.Sprintf("%s:%d", actionFilters, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("targets", fmt.Sprintf("%s:%d", actionTargets, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("check", fmt.Sprintf("%s:%d", actionCheck, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("delete", fmt.Sprintf("%s:%d", actionDeleteConfirm, s.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
