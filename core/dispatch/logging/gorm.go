package logging

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kilianp07/sosdispatch/core/model"
)

// logRow is the relational layout of a LogRecord.
type logRow struct {
	ID         uint      `gorm:"primaryKey"`
	Timestamp  time.Time `gorm:"index"`
	Action     string    `gorm:"size:32;index"`
	AlertID    string    `gorm:"size:32;index"`
	UnitID     string    `gorm:"size:64;index"`
	Status     string    `gorm:"size:16"`
	ETAMinutes int
	Lat        *float64
	Lon        *float64
}

func (logRow) TableName() string { return "dispatch_logs" }

func rowFrom(rec LogRecord) logRow {
	r := logRow{
		Timestamp:  rec.Timestamp,
		Action:     rec.Action,
		AlertID:    rec.AlertID,
		UnitID:     rec.UnitID,
		Status:     string(rec.Status),
		ETAMinutes: rec.ETAMinutes,
	}
	if rec.Position != nil {
		lat, lon := rec.Position.Lat, rec.Position.Lon
		r.Lat, r.Lon = &lat, &lon
	}
	return r
}

func (r logRow) record() LogRecord {
	rec := LogRecord{
		Timestamp:  r.Timestamp,
		Action:     r.Action,
		AlertID:    r.AlertID,
		UnitID:     r.UnitID,
		Status:     model.DispatchStatus(r.Status),
		ETAMinutes: r.ETAMinutes,
	}
	if r.Lat != nil && r.Lon != nil {
		rec.Position = &model.Location{Lat: *r.Lat, Lon: *r.Lon}
	}
	return rec
}

// GormStore persists logs through gorm to SQLite or MySQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the dispatch_logs table on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&logRow{}); err != nil {
		return nil, fmt.Errorf("logging: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenSQLite opens or creates the SQLite database at path.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("logging: open sqlite %s: %w", path, err)
	}
	return NewGormStore(db)
}

// OpenMySQL connects to the MySQL database described by dsn.
func OpenMySQL(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("logging: connect mysql: %w", err)
	}
	return NewGormStore(db)
}

// Append writes the record to the database.
func (s *GormStore) Append(ctx context.Context, rec LogRecord) error {
	row := rowFrom(rec)
	return s.db.WithContext(ctx).Create(&row).Error
}

// Query returns records matching q in chronological order.
func (s *GormStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	tx := s.db.WithContext(ctx).Model(&logRow{})
	if !q.Start.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Start)
	}
	if !q.End.IsZero() {
		tx = tx.Where("timestamp <= ?", q.End)
	}
	if q.AlertID != "" {
		tx = tx.Where("alert_id = ?", q.AlertID)
	}
	if q.UnitID != "" {
		tx = tx.Where("unit_id = ?", q.UnitID)
	}
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	var rows []logRow
	if q.Limit > 0 {
		tx = tx.Order("timestamp desc, id desc").Limit(q.Limit)
	} else {
		tx = tx.Order("timestamp asc, id asc")
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	res := make([]LogRecord, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.record())
	}
	return res, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
