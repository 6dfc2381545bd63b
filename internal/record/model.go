package record

import (
	"time"

	"gorm.io/gorm"
)

// Model is the GORM model for the session_records table.
type Model struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	OwnerID     string `gorm:"type:varchar(36);index;not null"`
	Title       string `gorm:"type:varchar(200);not null"`
	Mode        string `gorm:"type:varchar(20);not null"`
	IsLive      bool   `gorm:"index;default:true"`
	ViewerCount int    `gorm:"default:0"`
	CreatedAt   time.Time
	EndedAt     *time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for Model.
func (Model) TableName() string {
	return "session_records"
}

// ToRecord converts Model to a Record.
func (m *Model) ToRecord() *Record {
	return &Record{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Mode:        m.Mode,
		IsLive:      m.IsLive,
		ViewerCount: m.ViewerCount,
		CreatedAt:   m.CreatedAt,
		EndedAt:     m.EndedAt,
	}
}
