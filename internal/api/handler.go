package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/store"
)

// StatusReader produces a status report for a list of device query IDs.
type StatusReader interface {
	GetStatus(ctx context.Context, deviceIDs []string) catalog.AggregateResult
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	reader    StatusReader
	deviceIDs []string
	store     store.Store // nil when no database is configured
	webpush   *webpush.Options
	loc       *time.Location
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(reader StatusReader, deviceIDs []string, s store.Store, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		reader:    reader,
		deviceIDs: deviceIDs,
		store:     s,
		webpush:   webpushOptions,
		loc:       loc,
		now:       time.Now,
	}
}
