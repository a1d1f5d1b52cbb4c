package meeting

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

// turnScheduler вычисляет порядок выступлений. Порядок фиксируется один раз
// на раунд: дисконнект посреди раунда не переставляет участников,
// молчащий слот закрывается таймаутом
type turnScheduler struct {
	mode         models.OrderMode
	participants []uuid.UUID // порядок объявления при создании совещания
	rng          *rand.Rand
}

func newTurnScheduler(mode models.OrderMode, participants []uuid.UUID, rng *rand.Rand) *turnScheduler {
	return &turnScheduler{
		mode:         mode,
		participants: participants,
		rng:          rng,
	}
}

// orderFor возвращает порядок выступлений для раунда
func (s *turnScheduler) orderFor(round int) []uuid.UUID {
	order := make([]uuid.UUID, len(s.participants))
	copy(order, s.participants)

	if s.mode == models.OrderRandom && len(order) > 1 {
		s.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	return order
}
