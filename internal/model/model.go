// Package model defines the domain types used across the application.
package model

// User is the owner of sources, identified externally by a Telegram account.
type User struct {
	ID         int64 `db:"id"`
	TelegramID int64 `db:"telegram_id"`
}

// Source is a feed or page locator registered by a user.
type Source struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	URL    string `db:"url"`
}

// Target is a chat that receives the articles of a source.
type Target struct {
	ID       int64 `db:"id"`
	SourceID int64 `db:"source_id"`
	ChatID   int64 `db:"chat_id"`
}

// Filter is a case-insensitive keyword gating delivery for a source.
type Filter struct {
	ID       int64  `db:"id"`
	SourceID int64  `db:"source_id"`
	Keyword  string `db:"keyword"`
}

// Article is a normalized item extracted from a source during a poll.
// Title and Summary are sanitized; Link is the deduplication key.
type Article struct {
	Title   string
	Summary string
	Link    string
}

// Stats holds aggregate counts for the admin panel.
type Stats struct {
	Users   int `db:"users"`
	Sources int `db:"sources"`
	Targets int `db:"targets"`
}
