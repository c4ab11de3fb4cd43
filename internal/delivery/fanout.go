// Package delivery sends accepted articles to every target of a source and
// records them in the dedup ledger.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedforwarder/internal/filter"
	"feedforwarder/internal/metrics"
	"feedforwarder/internal/model"
)

// ErrDelivery marks a failed send to a single target.
var ErrDelivery = errors.New("delivery failed")

const defaultSendTimeout = 10 * time.Second

// Sender delivers a formatted message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Ledger records which article links were already delivered per source.
type Ledger interface {
	IsSent(ctx context.Context, sourceID int64, link string) (bool, error)
	MarkSent(ctx context.Context, sourceID int64, link string) error
}

// Outcome is the decision taken for one article.
type Outcome string

// Article outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoTargets Outcome = "no_targets"
)

// Job is one article of one source together with the source's current
// filters and targets.
type Job struct {
	Source  model.Source
	Matcher *filter.Matcher
	Targets []model.Target
	Article model.Article
}

// Result reports what happened to a Job. Sent and Failed count targets.
type Result struct {
	Outcome Outcome
	Sent    int
	Failed  int
}

// Fanout applies filter and dedup decisions and delivers to all targets.
type Fanout struct {
	ledger      Ledger
	sender      Sender
	log         *slog.Logger
	metrics     *metrics.Metrics
	sendTimeout time.Duration
}

// New creates a Fanout.
func New(ledger Ledger, sender Sender, log *slog.Logger) *Fanout {
	return &Fanout{
		ledger:      ledger,
		sender:      sender,
		log:         log,
		sendTimeout: defaultSendTimeout,
	}
}

// SetSendTimeout overrides the per-target send timeout.
func (f *Fanout) SetSendTimeout(d time.Duration) {
	if d > 0 {
		f.sendTimeout = d
	}
}

// SetMetrics enables metric recording.
func (f *Fanout) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

// Deliver runs the filter, dedup and send steps for one article.
//
// A failing target does not stop delivery to the others. Once all targets
// were attempted the link is marked as sent exactly once, even if every
// send failed, so an article is attempted at most once. The returned error
// is non-nil only when the ledger fails.
func (f *Fanout) Deliver(ctx context.Context, job Job) (Result, error) {
	a := job.Article

	if job.Matcher != nil && !job.Matcher.Match(a) {
		return f.finish(Result{Outcome: OutcomeFiltered}), nil
	}

	sent, err := f.ledger.IsSent(ctx, job.Source.ID, a.Link)
	if err != nil {
		return Result{}, fmt.Errorf("check sent: %w", err)
	}
	if sent {
		return f.finish(Result{Outcome: OutcomeDuplicate}), nil
	}

	// Left unmarked so the article goes out once a target is added.
	if len(job.Targets) == 0 {
		return f.finish(Result{Outcome: OutcomeNoTargets}), nil
	}

	text := Format(a)
	res := Result{Outcome: OutcomeDelivered}
	for _, t := range job.Targets {
		if err := f.send(ctx, t.ChatID, text); err != nil {
			res.Failed++
			f.metrics.TargetFailed()
			f.log.Warn("deliver article",
				"source_id", job.Source.ID, "chat_id", t.ChatID, "link", a.Link, "error", err)
			continue
		}
		res.Sent++
	}

	if err := f.ledger.MarkSent(ctx, job.Source.ID, a.Link); err != nil {
		return res, fmt.Errorf("mark sent: %w", err)
	}

	f.log.Debug("article delivered",
		"source_id", job.Source.ID, "link", a.Link, "sent", res.Sent, "failed", res.Failed)
	return f.finish(res), nil
}

func (f *Fanout) send(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, f.sendTimeout)
	defer cancel()

	if err := f.sender.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("%w: chat %d: %w", ErrDelivery, chatID, err)
	}
	return nil
}

func (f *Fanout) finish(res Result) Result {
	f.metrics.ArticleProcessed(string(res.Outcome))
	return res
}
