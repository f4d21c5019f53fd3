package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stacker/internal/engine"
	"stacker/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FillStore is the trade journal: an append-only SQLite log of confirmed
// fills shared by all bots.
type FillStore struct {
	db *gorm.DB
}

func NewFillStore(path string) (*FillStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trade history path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.FillModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL: keep lock contention low while HTTP reads run
		// alongside the tick writers.
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &FillStore{db: db}, nil
}

func (s *FillStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ engine.Journal = (*FillStore)(nil)

// RecordFill appends one fill.
func (s *FillStore) RecordFill(ctx context.Context, rec engine.FillRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("fill store not initialized")
	}
	var detail datatypes.JSON
	if len(rec.Detail) > 0 {
		raw, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("encode fill detail: %w", err)
		}
		detail = datatypes.JSON(raw)
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	m := model.FillModel{
		BotID:    strings.TrimSpace(rec.BotID),
		Symbol:   strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Side:     strings.ToLower(strings.TrimSpace(rec.Side)),
		Kind:     rec.Kind,
		OrderID:  rec.OrderID,
		Qty:      rec.Qty,
		Price:    rec.Price,
		Quote:    rec.Quote,
		Detail:   detail,
		AtMillis: at.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListFills returns the most recent fills, newest first. Empty botID lists
// across all bots.
func (s *FillStore) ListFills(ctx context.Context, botID string, limit, offset int) ([]engine.FillRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("fill store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := s.db.WithContext(ctx).Model(&model.FillModel{})
	if id := strings.TrimSpace(botID); id != "" {
		query = query.Where("bot_id = ?", id)
	}
	var models []model.FillModel
	if err := query.
		Order("at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.FillRecord, 0, len(models))
	for _, m := range models {
		out = append(out, fillModelToRecord(m))
	}
	return out, nil
}

// CountFills returns the total number of fills for a bot (all bots when
// botID is empty).
func (s *FillStore) CountFills(ctx context.Context, botID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("fill store not initialized")
	}
	query := s.db.WithContext(ctx).Model(&model.FillModel{})
	if id := strings.TrimSpace(botID); id != "" {
		query = query.Where("bot_id = ?", id)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func fillModelToRecord(m model.FillModel) engine.FillRecord {
	var detail map[string]any
	if len(m.Detail) > 0 {
		_ = json.Unmarshal(m.Detail, &detail)
	}
	return engine.FillRecord{
		BotID:   m.BotID,
		Symbol:  m.Symbol,
		Side:    m.Side,
		Kind:    m.Kind,
		OrderID: m.OrderID,
		Qty:     m.Qty,
		Price:   m.Price,
		Quote:   m.Quote,
		At:      time.UnixMilli(m.AtMillis),
		Detail:  detail,
	}
}
