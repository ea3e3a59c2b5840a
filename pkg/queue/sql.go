package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// queuedRow is one persisted request.
type queuedRow struct {
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	Payload  []byte `gorm:"not null"`
}

func (queuedRow) TableName() string { return "queued_requests" }

// SQL persists the queue in a relational table through gorm.
type SQL struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewSQL uses an open gorm database.
func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db}
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQL(db), nil
}

// Initialize creates the table.
func (s *SQL) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&queuedRow{}); err != nil {
		return fmt.Errorf("migrate queue table: %w", err)
	}
	return nil
}

// Load reads all rows in position order.
func (s *SQL) Load(ctx context.Context) (reqs []request.Request, err error) {
	start := time.Now()
	defer func() { observe(BackendSQLite, "load", start, err) }()

	var rows []queuedRow
	if err := s.db.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select queued requests: %w", err)
	}

	reqs = make([]request.Request, 0, len(rows))
	for _, row := range rows {
		req, err := decodeRequest(row.Payload)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Save replaces all rows inside one transaction.
func (s *SQL) Save(ctx context.Context, reqs []request.Request) (err error) {
	start := time.Now()
	defer func() { observe(BackendSQLite, "save", start, err) }()

	rows := make([]queuedRow, 0, len(reqs))
	for i, req := range reqs {
		data, err := encodeRequest(req)
		if err != nil {
			return err
		}
		rows = append(rows, queuedRow{Position: i, Payload: data})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&queuedRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("replace queued requests: %w", err)
	}
	return nil
}

// Clear deletes all rows.
func (s *SQL) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&queuedRow{}).Error
	if err != nil {
		return fmt.Errorf("clear queued requests: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
