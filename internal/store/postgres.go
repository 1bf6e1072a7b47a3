package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/errors"
	"main/pkg/conn"
)

// Record is one persisted blob.
type Record struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte
	UpdatedAt time.Time
}

// TableName pins the table used by the tracker.
func (Record) TableName() string {
	return "tracker_kv"
}

// PGStore is the PostgreSQL-backed KV implementation.
type PGStore struct {
	client *conn.Client
}

// NewPGStore connects, verifies the connection, and migrates the kv table.
func NewPGStore(connString string) (*PGStore, error) {
	client, err := conn.New(conn.Option{ConnString: connString})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := client.Ping(context.Background()); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := client.DB().AutoMigrate(&Record{}); err != nil {
		return nil, errors.Wrap(err, "migrate tracker_kv")
	}
	return &PGStore{client: client}, nil
}

// Load implements KV.
func (s *PGStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var rec Record
	err := s.client.DB().WithContext(ctx).First(&rec, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "load %s", key)
	}
	return rec.Value, true, nil
}

// Save implements KV with an upsert.
func (s *PGStore) Save(ctx context.Context, key string, blob []byte) error {
	rec := Record{Key: key, Value: blob, UpdatedAt: time.Now()}
	err := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "save %s", key)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	return s.client.Close()
}
