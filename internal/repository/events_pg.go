package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresEventRepo is the durable event log.
type PostgresEventRepo struct {
	db *gorm.DB
}

func NewPostgresEventRepo(cfg *config.Config) (*PostgresEventRepo, error) {
	db, err := gorm.Open(postgres.Open(dsnFor(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	if err := db.AutoMigrate(&model.SaleEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event store: %w", err)
	}
	return &PostgresEventRepo{db: db}, nil
}

func (r *PostgresEventRepo) Insert(ctx context.Context, event *model.SaleEvent) error {
	if event == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}

func (r *PostgresEventRepo) List(ctx context.Context, filter model.EventFilter) ([]*model.SaleEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.SaleEvent{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var records []*model.SaleEvent
	err := q.Order("created_at DESC").Limit(normalizeLimit(filter.Limit)).Find(&records).Error
	return records, err
}

func (r *PostgresEventRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.SaleEvent{}).Error
}

func (r *PostgresEventRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ service.EventRepo = (*PostgresEventRepo)(nil)
