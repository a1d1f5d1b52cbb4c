package meeting

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

func TestFixedOrderIsStable(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	sched := newTurnScheduler(models.OrderFixed, ids, rand.New(rand.NewSource(1)))

	for round := 1; round <= 3; round++ {
		order := sched.orderFor(round)
		if len(order) != len(ids) {
			t.Fatalf("round %d: got %d participants, want %d", round, len(order), len(ids))
		}
		for i := range ids {
			if order[i] != ids[i] {
				t.Fatalf("round %d: order[%d] = %s, want %s", round, i, order[i], ids[i])
			}
		}
	}
}

func TestRandomOrderIsPermutation(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	sched := newTurnScheduler(models.OrderRandom, ids, rand.New(rand.NewSource(42)))

	for round := 1; round <= 10; round++ {
		order := sched.orderFor(round)
		if len(order) != len(ids) {
			t.Fatalf("round %d: got %d participants, want %d", round, len(order), len(ids))
		}

		seen := make(map[uuid.UUID]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for _, id := range ids {
			if !seen[id] {
				t.Fatalf("round %d: participant %s missing from order", round, id)
			}
		}
	}
}

func TestOrderForDoesNotMutateInput(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	original := append([]uuid.UUID(nil), ids...)

	sched := newTurnScheduler(models.OrderRandom, ids, rand.New(rand.NewSource(7)))
	for round := 1; round <= 5; round++ {
		sched.orderFor(round)
	}

	for i := range ids {
		if ids[i] != original[i] {
			t.Fatalf("declared participant order mutated at index %d", i)
		}
	}
}
