// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package internal_usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/fridayai/pkg/commons"
)

func newTestLedger(t *testing.T, now time.Time) (*Ledger, *gorm.DB) {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&UsageRecord{}))

	ledger := NewLedgerWithDB(logger, db, WithClock(func() time.Time { return now }))
	return ledger, db
}

func TestSummarize_24HourCutoff(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ledger, db := newTestLedger(t, now)

	rows := []UsageRecord{
		{Model: "gpt-4o-mini", InputTokens: 100, OutputTokens: 50,
			CacheCreationInputTokens: 10, CacheReadInputTokens: 20,
			CreatedDate: now.Add(-1 * time.Second)},
		{Model: "gpt-4o-mini", InputTokens: 25, OutputTokens: 10,
			CacheCreationInputTokens: 0, CacheReadInputTokens: 15,
			CreatedDate: now.Add(-2 * time.Second)},
		{Model: "gpt-4o-mini", InputTokens: 999, OutputTokens: 999,
			CreatedDate: now.Add(-25 * time.Hour)},
	}
	require.NoError(t, db.Create(&rows).Error)

	summary, err := ledger.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), summary.Requests, "the 25h-old row falls outside the window")
	assert.Equal(t, uint64(125), summary.InputTokens)
	assert.Equal(t, uint64(60), summary.OutputTokens)
	assert.Equal(t, uint64(185), summary.TotalTokens)
	assert.Equal(t, uint64(10), summary.CacheCreationInputTokens)
	assert.Equal(t, uint64(35), summary.CacheReadInputTokens)

	require.NotEmpty(t, summary.ByModel)
	assert.Equal(t, uint64(185), summary.ByModel[0].TotalTokens)
}

func TestSummarize_OrdersModelsByTotalTokens(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ledger, db := newTestLedger(t, now)

	rows := []UsageRecord{
		{Model: "small", InputTokens: 10, OutputTokens: 5, CreatedDate: now.Add(-time.Minute)},
		{Model: "large", InputTokens: 500, OutputTokens: 200, CreatedDate: now.Add(-time.Minute)},
		{Model: "small", InputTokens: 20, OutputTokens: 5, CreatedDate: now.Add(-time.Hour)},
	}
	require.NoError(t, db.Create(&rows).Error)

	summary, err := ledger.Summarize(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.ByModel, 2)
	assert.Equal(t, "large", summary.ByModel[0].Model)
	assert.Equal(t, uint64(700), summary.ByModel[0].TotalTokens)
	assert.Equal(t, "small", summary.ByModel[1].Model)
	assert.Equal(t, uint64(2), summary.ByModel[1].Requests)
	assert.Equal(t, uint64(40), summary.ByModel[1].TotalTokens)
}

func TestSummarize_EmptyLedger(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, now)

	summary, err := ledger.Summarize(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Requests)
	assert.Zero(t, summary.TotalTokens)
	assert.NotNil(t, summary.ByModel, "byModel serialises as [], never null")
	assert.Empty(t, summary.ByModel)
}
