package catalog

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Aggregator runs fetch and parse for a list of devices and summarizes the result.
type Aggregator struct {
	fetcher     Fetcher
	parser      *Parser
	concurrency int
}

// NewAggregator creates an aggregator. concurrency <= 1 queries devices one at a time.
func NewAggregator(fetcher Fetcher, parser *Parser, concurrency int) *Aggregator {
	if parser == nil {
		parser = NewParser()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{
		fetcher:     fetcher,
		parser:      parser,
		concurrency: concurrency,
	}
}

// Get fetches and parses one device. On a fetch failure the records are empty
// and the error says why.
func (a *Aggregator) Get(ctx context.Context, deviceID string) ([]DeviceRecord, error) {
	html, err := a.fetcher.Fetch(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	rule, records := a.parser.Match(html)
	if rule == "" {
		log.Debug().Str("device", deviceID).Msg("no holdings layout matched")
	} else {
		log.Debug().Str("device", deviceID).Str("rule", rule).Int("records", len(records)).Msg("parsed holdings")
	}
	return records, nil
}

type deviceResult struct {
	records []DeviceRecord
	err     error
}

// GetStatus queries every device and returns the consolidated report. It never fails:
// per-device errors only lower the level.
func (a *Aggregator) GetStatus(ctx context.Context, deviceIDs []string) AggregateResult {
	ctx, span := tracer.Start(ctx, "catalog:GetStatus")
	defer span.End()

	results := a.collect(ctx, deviceIDs)

	out := AggregateResult{
		Records:  []DeviceRecord{},
		Level:    LevelSuccess,
		Message:  MessageSuccess,
		Outcomes: make([]Outcome, 0, len(deviceIDs)),
	}
	for i, id := range deviceIDs {
		res := results[i]
		out.Outcomes = append(out.Outcomes, Outcome{DeviceID: id, Records: len(res.records), Err: res.err})
		if res.err != nil {
			log.Warn().Err(res.err).Str("device", id).Msg("catalog fetch failed")
		}
		if len(res.records) == 0 {
			out.Level = LevelWarning
			out.Message = MessagePartial
			continue
		}
		out.Records = append(out.Records, res.records...)
	}
	if len(out.Records) == 0 {
		out.Level = LevelDanger
		out.Message = MessageFailure
	}

	span.SetAttributes(
		attribute.String("level", string(out.Level)),
		attribute.Int("records", len(out.Records)),
	)
	return out
}

// collect returns one result per device, indexed like deviceIDs regardless of
// completion order.
func (a *Aggregator) collect(ctx context.Context, deviceIDs []string) []deviceResult {
	results := make([]deviceResult, len(deviceIDs))
	if a.concurrency == 1 {
		for i, id := range deviceIDs {
			records, err := a.Get(ctx, id)
			results[i] = deviceResult{records: records, err: err}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, id := range deviceIDs {
		i, id := i, id
		g.Go(func() error {
			records, err := a.Get(ctx, id)
			results[i] = deviceResult{records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
