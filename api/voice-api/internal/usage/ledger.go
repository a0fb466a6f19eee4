// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_usage summarises the on-disk usage ledger written by the
// gateway tooling. The bridge only reads the ledger; writes belong to the
// callers that spend tokens.
package internal_usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/fridayai/pkg/commons"
)

// SummaryWindow is the rolling interval the summary covers.
const SummaryWindow = 24 * time.Hour

// UsageRecord is one ledger row: a single model request and its token
// accounting.
type UsageRecord struct {
	Id                       uint64    `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Model                    string    `json:"model" gorm:"column:model;type:varchar(100);not null"`
	InputTokens              uint64    `json:"inputTokens" gorm:"column:input_tokens;not null;default:0"`
	OutputTokens             uint64    `json:"outputTokens" gorm:"column:output_tokens;not null;default:0"`
	CacheCreationInputTokens uint64    `json:"cacheCreationInputTokens" gorm:"column:cache_creation_input_tokens;not null;default:0"`
	CacheReadInputTokens     uint64    `json:"cacheReadInputTokens" gorm:"column:cache_read_input_tokens;not null;default:0"`
	CreatedDate              time.Time `json:"createdDate" gorm:"column:created_date;not null"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// ModelUsage is the per-model slice of a summary.
type ModelUsage struct {
	Model        string `json:"model"`
	Requests     uint64 `json:"requests"`
	InputTokens  uint64 `json:"inputTokens"`
	OutputTokens uint64 `json:"outputTokens"`
	TotalTokens  uint64 `json:"totalTokens"`
}

// Summary aggregates the ledger over the rolling window. TotalTokens is
// input plus output; cache tokens are reported separately.
type Summary struct {
	Requests                 uint64       `json:"requests"`
	InputTokens              uint64       `json:"inputTokens"`
	OutputTokens             uint64       `json:"outputTokens"`
	TotalTokens              uint64       `json:"totalTokens"`
	CacheCreationInputTokens uint64       `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     uint64       `json:"cacheReadInputTokens"`
	ByModel                  []ModelUsage `json:"byModel"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects a deterministic time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// Ledger reads usage records from a SQLite database.
type Ledger struct {
	logger commons.Logger
	db     *gorm.DB
	clock  func() time.Time
}

// NewLedger opens the SQLite ledger at path. The schema is migrated so a
// fresh deployment serves an empty summary instead of failing.
func NewLedger(logger commons.Logger, path string, opts ...Option) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("usage: failed to open ledger %q: %w", path, err)
	}
	if err := db.AutoMigrate(&UsageRecord{}); err != nil {
		return nil, fmt.Errorf("usage: failed to migrate ledger: %w", err)
	}
	return NewLedgerWithDB(logger, db, opts...), nil
}

// NewLedgerWithDB wraps an already-open database handle.
func NewLedgerWithDB(logger commons.Logger, db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{logger: logger, db: db, clock: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Summarize aggregates every record younger than the rolling window,
// newest-heavy models first.
func (l *Ledger) Summarize(ctx context.Context) (*Summary, error) {
	cutoff := l.clock().Add(-SummaryWindow)

	var records []UsageRecord
	if err := l.db.WithContext(ctx).
		Where("created_date >= ?", cutoff).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("usage: ledger query failed: %w", err)
	}

	summary := &Summary{ByModel: []ModelUsage{}}
	perModel := make(map[string]*ModelUsage)
	for _, rec := range records {
		summary.Requests++
		summary.InputTokens += rec.InputTokens
		summary.OutputTokens += rec.OutputTokens
		summary.CacheCreationInputTokens += rec.CacheCreationInputTokens
		summary.CacheReadInputTokens += rec.CacheReadInputTokens

		mu := perModel[rec.Model]
		if mu == nil {
			mu = &ModelUsage{Model: rec.Model}
			perModel[rec.Model] = mu
		}
		mu.Requests++
		mu.InputTokens += rec.InputTokens
		mu.OutputTokens += rec.OutputTokens
		mu.TotalTokens += rec.InputTokens + rec.OutputTokens
	}
	summary.TotalTokens = summary.InputTokens + summary.OutputTokens

	for _, mu := range perModel {
		summary.ByModel = append(summary.ByModel, *mu)
	}
	sort.Slice(summary.ByModel, func(i, j int) bool {
		if summary.ByModel[i].TotalTokens != summary.ByModel[j].TotalTokens {
			return summary.ByModel[i].TotalTokens > summary.ByModel[j].TotalTokens
		}
		return summary.ByModel[i].Model < summary.ByModel[j].Model
	})
	return summary, nil
}
