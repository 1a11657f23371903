package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"ipad-status-backend/config"
	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/holding"
	"ipad-status-backend/internal/model"
	"ipad-status-backend/internal/notification"
	"ipad-status-backend/internal/store"
)

// StatusReader produces a status report for a list of device query IDs.
type StatusReader interface {
	GetStatus(ctx context.Context, deviceIDs []string) catalog.AggregateResult
}

// Dispatcher queues notification jobs.
type Dispatcher interface {
	Start(ctx context.Context)
	Dispatch(deviceID string)
}

// Service polls the catalog in the background and records holding state changes.
type Service struct {
	cfg        *config.Config
	store      store.Store
	reader     StatusReader
	workerPool Dispatcher
	loc        *time.Location
	now        func() time.Time
}

// NewService creates and initializes a new scraper service.
func NewService(cfg *config.Config, st store.Store, reader StatusReader) *Service {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		store:      st,
		reader:     reader,
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, st.DB(), &webpushOptions),
		loc:        cfg.Catalog.Location(),
		now:        time.Now,
	}
}

// SetDispatcher replaces the notification worker pool.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.workerPool = d
}

// Run starts the scraping process in a loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Scraper.Enabled {
		log.Info().Msg("scraper is disabled, not starting")
		return
	}
	log.Info().Dur("interval", s.cfg.Scraper.Interval).Msg("starting scraper service")

	if s.cfg.Push.Enabled() {
		s.workerPool.Start(ctx)
	} else {
		log.Warn().Msg("VAPID keys not configured, notifications disabled")
		s.workerPool = nil
	}

	s.ScrapeOnce(ctx)

	timer := time.NewTimer(s.cfg.Scraper.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scraper service shutting down")
			return
		case <-timer.C:
			s.ScrapeOnce(ctx)
			timer.Reset(s.cfg.Scraper.Interval)
		}
	}
}

// ScrapeOnce performs a single status read and persists what changed.
func (s *Service) ScrapeOnce(ctx context.Context) {
	now := s.now()
	result := s.reader.GetStatus(ctx, s.cfg.Catalog.DeviceIDs)

	failed := make([]string, 0)
	for _, o := range result.Failed() {
		failed = append(failed, o.DeviceID)
	}
	log.Info().
		Str("level", string(result.Level)).
		Int("records", len(result.Records)).
		Strs("failed", failed).
		Msg("scrape cycle read catalog")

	poll := &model.PollLog{
		ObservedAt: now.UTC(),
		Level:      string(result.Level),
		Message:    result.Message,
		Records:    len(result.Records),
		Failed:     strings.Join(failed, ","),
	}
	if err := s.store.RecordPoll(ctx, poll); err != nil {
		log.Error().Err(err).Msg("failed to record poll")
	}

	// A partial read would look like holdings vanished; only complete reads update state.
	if result.Level != catalog.LevelSuccess {
		log.Warn().Msg("scrape cycle incomplete, holding state not updated")
		return
	}

	holdings := holding.FromRecords(result.Records, now, s.loc)

	if err := s.store.UpsertDevices(ctx, holdings); err != nil {
		log.Error().Err(err).Msg("failed to upsert devices")
		return
	}

	available, err := s.store.UpdateHoldings(ctx, now.UTC(), holdings)
	if err != nil {
		log.Error().Err(err).Msg("failed to update holdings")
		return
	}

	if len(available) > 0 && s.workerPool != nil {
		log.Info().Int("devices", len(available)).Msg("dispatching notifications")
		for _, id := range available {
			s.workerPool.Dispatch(id)
		}
	}

	log.Info().Msg("scrape cycle finished")
}
