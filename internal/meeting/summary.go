package meeting

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

// Summarizer выводит содержание и обоснование решения из мнений раунда,
// достигшего консенсуса. Политика подменяемая; контракт — непустые
// content и rationale при непустом списке мнений
type Summarizer interface {
	Summarize(topic string, round int, names map[uuid.UUID]string, opinions []*models.Opinion) (content, rationale string)
}

// roundSummarizer — детерминированная политика по умолчанию: мнения
// финального раунда в порядке выступлений с атрибуцией по имени агента
type roundSummarizer struct{}

func (roundSummarizer) Summarize(topic string, round int, names map[uuid.UUID]string, opinions []*models.Opinion) (string, string) {
	parts := make([]string, 0, len(opinions))
	for _, op := range opinions {
		if op.IsTimeout {
			continue
		}
		name := names[op.AgentID]
		if name == "" {
			name = op.AgentID.String()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, op.Content))
	}

	content := strings.Join(parts, "; ")
	if content == "" {
		content = fmt.Sprintf("Consensus on %q with no substantive opinions recorded", topic)
	} else {
		content = fmt.Sprintf("Consensus on %q: %s", topic, content)
	}

	rationale := fmt.Sprintf("Unanimous agreement after %d discussion round(s)", round)

	return content, rationale
}
