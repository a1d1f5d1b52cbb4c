package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/consilium/internal/database"
)

// TopicHandler — тонкая эвристика подсказки тем: ранжирование ключевых
// слов по недавно сохраненным мнениям. Ядро совещаний содержимое не
// анализирует, это чисто обвязка поверх хранилища
type TopicHandler struct {
	db *database.Database
}

func NewTopicHandler(db *database.Database) *TopicHandler {
	return &TopicHandler{db: db}
}

type TopicSuggestion struct {
	Topic string `json:"topic"`
	Score int    `json:"score"`
}

func (h *TopicHandler) SuggestTopics(c *gin.Context) {
	limit := 5
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 20 {
			limit = parsed
		}
	}

	opinions, err := h.db.GetRecentOpinions(200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load opinions"})
		return
	}

	contents := make([]string, len(opinions))
	for i, op := range opinions {
		contents[i] = op.Content
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": rankTopics(contents, limit)})
}

var topicStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"should": true, "would": true, "could": true, "about": true, "there": true,
	"their": true, "which": true, "because": true, "been": true, "will": true,
	"they": true, "them": true, "then": true, "than": true, "what": true,
	"when": true, "where": true, "more": true, "some": true, "very": true,
}

// rankTopics считает частоты значимых слов и возвращает верхушку рейтинга.
// Порядок детерминирован: по убыванию счета, при равенстве по алфавиту
func rankTopics(contents []string, limit int) []TopicSuggestion {
	counts := make(map[string]int)

	for _, content := range contents {
		words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range words {
			if len(word) < 4 || topicStopwords[word] {
				continue
			}
			counts[word]++
		}
	}

	suggestions := make([]TopicSuggestion, 0, len(counts))
	for word, count := range counts {
		suggestions = append(suggestions, TopicSuggestion{Topic: word, Score: count})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Topic < suggestions[j].Topic
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}
