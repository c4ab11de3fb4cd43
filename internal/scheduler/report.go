package scheduler

import "feedforwarder/internal/delivery"

// SourceReport summarizes one pass over a single source.
type SourceReport struct {
	Articles   int
	Delivered  int
	Filtered   int
	Duplicates int
	NoTargets  int
	// FetchErr is set when the source could not be extracted this pass.
	FetchErr error
}

func (r *SourceReport) record(res delivery.Result) {
	switch res.Outcome {
	case delivery.OutcomeDelivered:
		r.Delivered++
	case delivery.OutcomeFiltered:
		r.Filtered++
	case delivery.OutcomeDuplicate:
		r.Duplicates++
	case delivery.OutcomeNoTargets:
		r.NoTargets++
	}
}

// CycleReport summarizes one poll cycle over all sources.
type CycleReport struct {
	Sources       int
	FailedSources int
	FetchFailures int
	Articles      int
	Delivered     int
	Filtered      int
	Duplicates    int
	NoTargets     int
}

func (c *CycleReport) add(r SourceReport, err error) {
	if err != nil {
		c.FailedSources++
	}
	if r.FetchErr != nil {
		c.FetchFailures++
	}
	c.Articles += r.Articles
	c.Delivered += r.Delivered
	c.Filtered += r.Filtered
	c.Duplicates += r.Duplicates
	c.NoTargets += r.NoTargets
}
