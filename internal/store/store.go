package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ipad-status-backend/internal/holding"
	"ipad-status-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertDevices(ctx context.Context, holdings []holding.Holding) error
	UpdateHoldings(ctx context.Context, now time.Time, holdings []holding.Holding) ([]string, error)
	RecordPoll(ctx context.Context, poll *model.PollLog) error
	RecentPolls(ctx context.Context, limit int) ([]model.PollLog, error)
	DeviceHistory(ctx context.Context, deviceID string, limit int) ([]model.HoldingHistory, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpdateHoldings applies a complete read of holdings to the open and history
// tables. It returns the IDs of devices that went back on the shelf.
//
// The read must be complete: an open holding missing from it is archived.
func (s *gormStore) UpdateHoldings(ctx context.Context, now time.Time, holdings []holding.Holding) ([]string, error) {
	currentOpen, err := s.fetchAllOpenHoldings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch open holding records")
	}

	var available []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, h := range dedupe(holdings) {
			old, exists := currentOpen[h.ID]
			if !exists {
				// Newly unavailable. A device first seen on the shelf needs no row.
				if !h.Available() {
					rec := prepareOpen(h, now)
					if err := tx.Create(&rec).Error; err != nil {
						return errors.Wrapf(err, "failed to create open holding for %s", h.ID)
					}
				}
				continue
			}
			delete(currentOpen, h.ID)

			if h.RawState == old.RawState {
				continue
			}
			if err := archiveRecord(tx, old, now); err != nil {
				return err
			}
			if h.Available() {
				if err := tx.Delete(&model.HoldingOpen{}, "device_id = ?", old.DeviceID).Error; err != nil {
					return errors.Wrapf(err, "failed to delete open holding for %s", old.DeviceID)
				}
				available = append(available, h.ID)
				continue
			}
			rec := prepareOpen(h, now)
			if err := tx.Save(&rec).Error; err != nil {
				return errors.Wrapf(err, "failed to update open holding for %s", h.ID)
			}
		}

		// Holdings no longer listed by the catalog.
		for _, remaining := range currentOpen {
			if err := archiveRecord(tx, remaining, now); err != nil {
				return err
			}
			if err := tx.Delete(&model.HoldingOpen{}, "device_id = ?", remaining.DeviceID).Error; err != nil {
				return errors.Wrapf(err, "failed to delete open holding for %s", remaining.DeviceID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return available, nil
}

// archiveRecord creates a historical record of a finished holding state.
func archiveRecord(tx *gorm.DB, open model.HoldingOpen, observationTime time.Time) error {
	history := model.HoldingHistory{
		DeviceID:    open.DeviceID,
		ObservedAt:  observationTime,
		State:       open.State,
		RawState:    open.RawState,
		DueDate:     open.DueDate,
		PeriodStart: open.ObservedAt,
		PeriodEnd:   observationTime,
	}
	if err := tx.Create(&history).Error; err != nil {
		return errors.Wrapf(err, "failed to archive holding for %s", open.DeviceID)
	}
	return nil
}

func prepareOpen(h holding.Holding, now time.Time) model.HoldingOpen {
	return model.HoldingOpen{
		DeviceID:   h.ID,
		ObservedAt: now,
		State:      h.State,
		RawState:   h.RawState,
		DueDate:    h.Date,
	}
}

// dedupe keeps the last occurrence of each ID. Overlapping queries ("ipad" and
// "ipad0083") list the same holding twice.
func dedupe(holdings []holding.Holding) []holding.Holding {
	index := make(map[string]int, len(holdings))
	out := make([]holding.Holding, 0, len(holdings))
	for _, h := range holdings {
		if i, ok := index[h.ID]; ok {
			out[i] = h
			continue
		}
		index[h.ID] = len(out)
		out = append(out, h)
	}
	return out
}

// UpsertDevices stores device metadata for every holding.
func (s *gormStore) UpsertDevices(ctx context.Context, holdings []holding.Holding) error {
	unique := dedupe(holdings)
	if len(unique) == 0 {
		return nil
	}

	devices := make([]model.Device, 0, len(unique))
	for _, h := range unique {
		devices = append(devices, model.Device{ID: h.ID, Site: h.Site, Type: h.Type})
	}

	log.Debug().Int("devices", len(devices)).Msg("batch upserting devices")
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"site", "type", "updated_at"}),
	}).Create(&devices).Error
}

// RecordPoll stores the outcome of one status read.
func (s *gormStore) RecordPoll(ctx context.Context, poll *model.PollLog) error {
	if err := s.db.WithContext(ctx).Create(poll).Error; err != nil {
		return errors.Wrap(err, "failed to record poll")
	}
	return nil
}

// RecentPolls returns the latest polls, newest first.
func (s *gormStore) RecentPolls(ctx context.Context, limit int) ([]model.PollLog, error) {
	var polls []model.PollLog
	if err := s.db.WithContext(ctx).
		Order("observed_at DESC").
		Limit(limit).
		Find(&polls).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list polls")
	}
	return polls, nil
}

// DeviceHistory returns archived states for a device, newest first.
func (s *gormStore) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]model.HoldingHistory, error) {
	var history []model.HoldingHistory
	if err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("observed_at DESC").
		Limit(limit).
		Find(&history).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list history for %s", deviceID)
	}
	return history, nil
}

func (s *gormStore) fetchAllOpenHoldings(ctx context.Context) (map[string]model.HoldingOpen, error) {
	var openRecords []model.HoldingOpen
	if err := s.db.WithContext(ctx).Find(&openRecords).Error; err != nil {
		return nil, err
	}
	recordMap := make(map[string]model.HoldingOpen, len(openRecords))
	for _, r := range openRecords {
		recordMap[r.DeviceID] = r
	}
	return recordMap, nil
}
