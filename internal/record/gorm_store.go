package record

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

// GormStore implements Store against a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database-backed record store and migrates its table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Model{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// CreateRecord inserts a new live record and returns its id.
func (s *GormStore) CreateRecord(ctx context.Context, ownerID, title, mode string) (string, error) {
	l := pkglog.Ctx(ctx)

	m := &Model{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   title,
		Mode:    mode,
		IsLive:  true,
	}

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		l.Error().Err(err).Msg("failed to create session record")
		return "", err
	}

	l.Debug().Str("record_id", m.ID).Msg("session record created")
	return m.ID, nil
}

// IncrementViewers bumps the persisted viewer counter.
func (s *GormStore) IncrementViewers(ctx context.Context, recordID string) error {
	return s.db.WithContext(ctx).
		Model(&Model{}).
		Where("id = ?", recordID).
		UpdateColumn("viewer_count", gorm.Expr("viewer_count + 1")).Error
}

// DecrementViewers decrements the counter, floored at zero. The guard in the
// WHERE clause keeps the floor portable across drivers.
func (s *GormStore) DecrementViewers(ctx context.Context, recordID string) error {
	return s.db.WithContext(ctx).
		Model(&Model{}).
		Where("id = ? AND viewer_count > 0", recordID).
		UpdateColumn("viewer_count", gorm.Expr("viewer_count - 1")).Error
}

// MarkEnded flips the record offline and stamps the end time. The viewer
// counter is reset so a stale count never survives the session.
func (s *GormStore) MarkEnded(ctx context.Context, recordID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&Model{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"is_live":      false,
			"ended_at":     &now,
			"viewer_count": 0,
		}).Error
}

// GetRecord retrieves a record by id.
func (s *GormStore) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	var m Model
	err := s.db.WithContext(ctx).First(&m, "id = ?", recordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return m.ToRecord(), nil
}

// ListLive returns currently live records, newest first.
func (s *GormStore) ListLive(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var models []Model
	err := s.db.WithContext(ctx).
		Where("is_live = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(models))
	for i := range models {
		records[i] = *models[i].ToRecord()
	}
	return records, nil
}
