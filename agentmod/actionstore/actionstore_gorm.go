package actionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ModerationAction struct {
	ID        string    `gorm:"primarykey"`
	ActorID   string    `gorm:"index;not null"`
	EventID   string    `gorm:"index"`
	Action    string    `gorm:"index;not null"`
	Reason    string    `gorm:"not null"`
	MetaJSON  string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

type RateLimitCounter struct {
	BucketKey   string    `gorm:"primaryKey"`
	WindowStart time.Time `gorm:"primaryKey"`
	Count       int
	UpdatedAt   time.Time
}

// Store backed by a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)
var _ CounterSink = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ModerationAction{}, &RateLimitCounter{}); err != nil {
		return nil, fmt.Errorf("migrating moderation tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) RecordAction(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := ModerationAction{
		ID:        rec.ID,
		ActorID:   rec.ActorID,
		EventID:   rec.EventID,
		Action:    string(rec.Kind),
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.Meta) > 0 {
		b, err := json.Marshal(rec.Meta)
		if err != nil {
			return fmt.Errorf("encoding moderation metadata: %w", err)
		}
		row.MetaJSON = string(b)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) ListActions(ctx context.Context, q ListQuery) ([]Record, error) {
	var rows []ModerationAction
	tx := s.db.WithContext(ctx).Order("created_at desc").Limit(q.limit())
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{
			ID:        row.ID,
			ActorID:   row.ActorID,
			EventID:   row.EventID,
			Kind:      Kind(row.Action),
			Reason:    row.Reason,
			CreatedAt: row.CreatedAt,
		}
		if row.MetaJSON != "" {
			if err := json.Unmarshal([]byte(row.MetaJSON), &rec.Meta); err != nil {
				return nil, fmt.Errorf("decoding moderation metadata for %s: %w", row.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) CountActions(ctx context.Context, kinds ...Kind) (int64, error) {
	var n int64
	tx := s.db.WithContext(ctx).Model(&ModerationAction{})
	if len(kinds) > 0 {
		vals := make([]string, len(kinds))
		for i, k := range kinds {
			vals[i] = string(k)
		}
		tx = tx.Where("action IN ?", vals)
	}
	if err := tx.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Upserts the counter row for (bucket, window start).
func (s *GormStore) SaveCounter(ctx context.Context, snap CounterSnapshot) error {
	row := RateLimitCounter{
		BucketKey:   snap.BucketKey,
		WindowStart: snap.WindowStart.UTC(),
		Count:       snap.Count,
		UpdatedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket_key"}, {Name: "window_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Counter(ctx context.Context, bucketKey string, windowStart time.Time) (*RateLimitCounter, error) {
	var row RateLimitCounter
	err := s.db.WithContext(ctx).Where("bucket_key = ? AND window_start = ?", bucketKey, windowStart.UTC()).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
