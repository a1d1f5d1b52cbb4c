package handlers

import (
	"testing"
)

func TestRankTopicsCountsAndOrders(t *testing.T) {
	contents := []string{
		"We should migrate the billing database next sprint",
		"The billing migration is risky without a rollback plan",
		"Billing comes first, rollback plan second",
	}

	suggestions := rankTopics(contents, 3)
	if len(suggestions) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(suggestions))
	}

	if suggestions[0].Topic != "billing" || suggestions[0].Score != 3 {
		t.Fatalf("top suggestion = %+v, want billing with score 3", suggestions[0])
	}

	for i := 1; i < len(suggestions); i++ {
		prev, cur := suggestions[i-1], suggestions[i]
		if cur.Score > prev.Score {
			t.Fatalf("suggestions not sorted by score: %+v before %+v", prev, cur)
		}
		if cur.Score == prev.Score && cur.Topic < prev.Topic {
			t.Fatalf("ties not sorted alphabetically: %+v before %+v", prev, cur)
		}
	}
}

func TestRankTopicsSkipsShortAndStopwords(t *testing.T) {
	contents := []string{"We should do it now", "should this that with"}

	suggestions := rankTopics(contents, 5)
	for _, s := range suggestions {
		if len(s.Topic) < 4 {
			t.Fatalf("short word %q survived filtering", s.Topic)
		}
		if topicStopwords[s.Topic] {
			t.Fatalf("stopword %q survived filtering", s.Topic)
		}
	}
}

func TestRankTopicsDeterministicTieBreak(t *testing.T) {
	contents := []string{"alpha bravo", "bravo alpha"}

	first := rankTopics(contents, 2)
	second := rankTopics(contents, 2)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d and %d suggestions, want 2 each", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ranking not deterministic: %+v vs %+v", first, second)
		}
	}
	if first[0].Topic != "alpha" || first[1].Topic != "bravo" {
		t.Fatalf("tie not broken alphabetically: %+v", first)
	}
}

func TestRankTopicsRespectsLimit(t *testing.T) {
	contents := []string{"alpha bravo charlie delta echo foxtrot"}

	suggestions := rankTopics(contents, 2)
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
}
