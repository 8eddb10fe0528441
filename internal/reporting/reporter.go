// Package reporting turns decided waiver runs into summaries and events and
// delivers them to the configured sinks.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/observability"
)

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, events []domain.WaiverEvent) error
}

type sink struct {
	name string
	pub  Publisher
}

// Options for creating a Reporter.
type Options struct {
	MaxElapsed      time.Duration // per-sink retry budget, default 30s
	InitialInterval time.Duration // first retry delay, default 250ms
	Logger          logrus.FieldLogger
}

// Reporter is a downstream consumer of run results. Delivery is
// best-effort: a failing sink is retried, then logged, and never affects
// claim state.
type Reporter struct {
	sinks []sink
	opts  Options
	log   logrus.FieldLogger
}

// NewReporter creates a Reporter without sinks.
func NewReporter(opts Options) *Reporter {
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reporter{opts: opts, log: logger.WithField("component", "reporting")}
}

// AddSink registers a named destination.
func (r *Reporter) AddSink(name string, p Publisher) {
	r.sinks = append(r.sinks, sink{name: name, pub: p})
}

// Sinks returns the registered sink names in delivery order.
func (r *Reporter) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.name
	}
	return names
}

// Report summarizes run and publishes its events to every sink. Each sink
// is retried independently; the returned error joins the sinks that gave up.
func (r *Reporter) Report(ctx context.Context, run *domain.WaiverRun) error {
	if run == nil || run.Skipped || len(run.Claims) == 0 {
		return nil
	}

	summary := Summarize(run.Claims)
	events := Events(run, summary)

	r.log.WithFields(logrus.Fields{
		"league_id":  run.LeagueID,
		"run_id":     run.RunID,
		"trigger":    run.Trigger,
		"processed":  summary.Processed,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"cancelled":  summary.Cancelled,
	}).Info("waiver run summary")

	var errs []error
	for _, s := range r.sinks {
		if err := r.deliver(ctx, s, events); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) deliver(ctx context.Context, s sink, events []domain.WaiverEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxElapsedTime = r.opts.MaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := s.pub.Publish(ctx, events)
		if err != nil {
			observability.RecordSinkError(s.name)
			r.log.WithFields(logrus.Fields{"sink": s.name, "attempt": attempt}).
				WithError(err).Warn("event delivery failed")
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return err
	}
	observability.RecordEventsPublished(s.name, len(events))
	return nil
}
