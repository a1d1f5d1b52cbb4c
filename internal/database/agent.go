package database

import (
	"github.com/thereayou/consilium/internal/models"
	"time"
)

func (d *Database) SaveAgent(agent *models.Agent) error {
	if err := d.db.Create(agent).Error; err != nil {
		return err
	}
	return nil
}

func (d *Database) GetAgent(id string) (*models.Agent, error) {
	agent := models.Agent{}
	if err := d.db.First(&agent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (d *Database) FindAgentByName(name string) (*models.Agent, error) {
	agent := models.Agent{}
	if err := d.db.Where("name = ?", name).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

// GetAgentsByIDs возвращает агентов в порядке перечисления идентификаторов
func (d *Database) GetAgentsByIDs(ids []string) ([]models.Agent, error) {
	var agents []models.Agent
	if err := d.db.Where("id IN ?", ids).Find(&agents).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]models.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID.String()] = a
	}

	ordered := make([]models.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

func (d *Database) ListAgents() ([]models.Agent, error) {
	var agents []models.Agent
	err := d.db.Order("created_at ASC").Find(&agents).Error
	return agents, err
}

func (d *Database) UpdateLastSeen(id string) error {
	return d.db.Model(&models.Agent{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
}
