// Package titles implements the batched title-regeneration job that
// runs after a settings change affecting title generation. It is
// bus-driven: the settings save action publishes an event, this
// processor subscribes, and interested views subscribe to the
// completion broadcast; there are no direct cross-module calls.
package titles

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/bus"
	"github.com/odvcencio/parley/pkg/config"
	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/sched"
)

// Report accumulates the outcome of one regeneration run.
type Report struct {
	Total      int
	Successful int
	Results    []bus.TitleItemOutcome
}

// Processor regenerates titles for every conversation of a namespace
// in fixed-size batches. Requests within a batch run concurrently; a
// fixed delay between batches bounds the request rate. A failing item
// never stops its siblings or later batches.
type Processor struct {
	client     *backend.Client
	bus        bus.MessageBus
	clock      sched.Clock
	logger     *logging.Logger
	batchSize  int
	batchDelay time.Duration

	sub bus.Subscription
}

// NewProcessor creates a processor for the client's namespace.
func NewProcessor(client *backend.Client, b bus.MessageBus, clock sched.Clock, logger *logging.Logger, cfg config.TitlesConfig) *Processor {
	if clock == nil {
		clock = sched.Real()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = config.DefaultTitleBatchSize
	}
	return &Processor{
		client:     client,
		bus:        b,
		clock:      clock,
		logger:     logger,
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// Start subscribes to settings-saved events. Each event that affects
// title generation triggers one full run.
func (p *Processor) Start(ctx context.Context) error {
	sub, err := p.bus.Subscribe(ctx, bus.SubjectSettingsSaved, func(msg *bus.Message) {
		var ev bus.SettingsSavedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			p.logger.Warn(logging.CategoryTitle, "bad_settings_event", err.Error(), nil)
			return
		}
		if !ev.TriggerRefresh {
			return
		}
		if _, err := p.Run(ctx); err != nil && !perrors.IsCode(err, perrors.ErrCodePartialBatch) {
			p.logger.Error(logging.CategoryTitle, "refresh_run_failed", err.Error(), nil)
		}
	})
	if err != nil {
		return err
	}
	p.sub = sub
	return nil
}

// Stop unsubscribes from the bus.
func (p *Processor) Stop() {
	if p.sub != nil {
		p.sub.Unsubscribe()
		p.sub = nil
	}
}

// Run fetches the conversation list and regenerates every title. It
// returns the accumulated report; when some items failed the error
// carries ErrCodePartialBatch but the report is still complete. The
// completion broadcast goes out either way.
func (p *Processor) Run(ctx context.Context) (*Report, error) {
	list, err := p.client.ListConversations(ctx)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrCodeNetworkFailure, "listing conversations for title refresh")
	}

	report := &Report{
		Total:   len(list),
		Results: make([]bus.TitleItemOutcome, len(list)),
	}

	for start := 0; start < len(list); start += p.batchSize {
		if start > 0 {
			if err := p.clock.Sleep(ctx, p.batchDelay); err != nil {
				break
			}
		}

		end := start + p.batchSize
		if end > len(list) {
			end = len(list)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				title, err := p.client.GenerateTitle(ctx, list[i].ID)
				outcome := bus.TitleItemOutcome{ConversationID: list[i].ID}
				if err != nil {
					outcome.Error = err.Error()
				} else {
					outcome.OK = true
					outcome.Title = title
				}
				report.Results[i] = outcome
				// Failures are recorded, never propagated: one bad
				// item must not sink the batch.
				return nil
			})
		}
		g.Wait()
	}

	for _, r := range report.Results {
		if r.OK {
			report.Successful++
		}
	}

	p.logger.Info(logging.CategoryTitle, "batch_complete", "", map[string]any{
		"total":      report.Total,
		"successful": report.Successful,
	})

	if p.bus != nil {
		event := bus.TitlesRefreshedEvent{
			Namespace:  string(p.client.Namespace()),
			Total:      report.Total,
			Successful: report.Successful,
			Results:    report.Results,
		}
		if err := bus.PublishJSON(ctx, p.bus, bus.SubjectTitlesRefreshed, event); err != nil {
			p.logger.Warn(logging.CategoryBus, "publish_failed", err.Error(), nil)
		}
	}

	if report.Successful < report.Total {
		return report, perrors.New(perrors.ErrCodePartialBatch, "some titles failed to regenerate").
			WithContext("total", report.Total).
			WithContext("successful", report.Successful)
	}
	return report, nil
}
