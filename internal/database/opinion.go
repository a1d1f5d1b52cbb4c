package database

import (
	"github.com/thereayou/consilium/internal/models"
	"gorm.io/gorm/clause"
)

// AppendOpinion записывает мнение идемпотентно: повторная запись с тем же
// (meeting_id, sequence_number) молча игнорируется
func (d *Database) AppendOpinion(opinion *models.Opinion) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meeting_id"}, {Name: "sequence_number"}},
		DoNothing: true,
	}).Create(opinion).Error
}

// GetMeetingOpinions возвращает мнения совещания в порядке присвоения номеров
func (d *Database) GetMeetingOpinions(meetingID string, round int) ([]models.Opinion, error) {
	var opinions []models.Opinion

	query := d.db.Where("meeting_id = ?", meetingID)
	if round > 0 {
		query = query.Where("round_number = ?", round)
	}

	err := query.
		Order("sequence_number ASC").
		Preload("Agent").
		Find(&opinions).Error

	if err != nil {
		return nil, err
	}

	return opinions, nil
}

// GetRecentOpinions возвращает последние сохраненные мнения по всем совещаниям
// (сырье для эвристики подсказки тем)
func (d *Database) GetRecentOpinions(limit int) ([]models.Opinion, error) {
	var opinions []models.Opinion

	err := d.db.
		Where("is_timeout = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&opinions).Error

	return opinions, err
}
