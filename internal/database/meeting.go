package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
	"gorm.io/gorm"
)

func (d *Database) CreateMeeting(meeting *models.Meeting) error {
	return d.db.Create(meeting).Error
}

func (d *Database) GetMeeting(id string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := d.db.
		Preload("Participants").
		Preload("Decision").
		First(&meeting, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &meeting, nil
}

// ListMeetings возвращает совещания, опционально отфильтрованные по статусу
func (d *Database) ListMeetings(status string, limit int) ([]models.Meeting, error) {
	var meetings []models.Meeting

	query := d.db.Preload("Participants")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&meetings).Error

	return meetings, err
}

func (d *Database) GetAgentMeetings(agentID string) ([]models.Meeting, error) {
	var agent models.Agent
	err := d.db.Preload("Meetings").First(&agent, "id = ?", agentID).Error
	if err != nil {
		return nil, err
	}

	for i := range agent.Meetings {
		d.db.Model(&agent.Meetings[i]).Association("Participants").Find(&agent.Meetings[i].Participants)
	}

	return agent.Meetings, nil
}

// UpdateMeetingStatus — долговечное зеркало перехода состояния (ядро остается источником истины)
func (d *Database) UpdateMeetingStatus(meetingID uuid.UUID, status models.MeetingStatus, outcome models.MeetingOutcome, round int) error {
	updates := map[string]interface{}{
		"status":        status,
		"outcome":       outcome,
		"current_round": round,
	}
	if status == models.StatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return d.db.Model(&models.Meeting{}).Where("id = ?", meetingID).Updates(updates).Error
}

func (d *Database) DeleteMeeting(id string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Opinion{}, "meeting_id = ?", id).Error; err != nil {
			return err
		}

		if err := tx.Delete(&models.Decision{}, "meeting_id = ?", id).Error; err != nil {
			return err
		}

		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", id).Error; err != nil {
			return err
		}

		if err := tx.Model(&meeting).Association("Participants").Clear(); err != nil {
			return err
		}

		return tx.Delete(&meeting).Error
	})
}
