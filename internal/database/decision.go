package database

import (
	"github.com/thereayou/consilium/internal/models"
	"gorm.io/gorm/clause"
)

// CreateDecision записывает решение; на совещание допускается не более одного,
// повторная запись игнорируется
func (d *Database) CreateDecision(decision *models.Decision) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meeting_id"}},
		DoNothing: true,
	}).Create(decision).Error
}

func (d *Database) GetMeetingDecision(meetingID string) (*models.Decision, error) {
	var decision models.Decision
	if err := d.db.First(&decision, "meeting_id = ?", meetingID).Error; err != nil {
		return nil, err
	}
	return &decision, nil
}

func (d *Database) ListDecisions(limit int) ([]models.Decision, error) {
	var decisions []models.Decision

	err := d.db.
		Order("created_at DESC").
		Limit(limit).
		Preload("Meeting").
		Find(&decisions).Error

	return decisions, err
}
