package meeting

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

func TestSummarizeAttributesOpinionsInOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	names := map[uuid.UUID]string{a: "alpha", b: "bravo"}

	opinions := []*models.Opinion{
		{AgentID: a, Content: "ship it"},
		{AgentID: b, Content: "agree, ship it"},
	}

	content, rationale := roundSummarizer{}.Summarize("release", 2, names, opinions)

	if !strings.Contains(content, `"release"`) {
		t.Fatalf("content %q does not mention topic", content)
	}
	alphaIdx := strings.Index(content, "alpha: ship it")
	bravoIdx := strings.Index(content, "bravo: agree, ship it")
	if alphaIdx < 0 || bravoIdx < 0 {
		t.Fatalf("content %q lacks attributed opinions", content)
	}
	if alphaIdx > bravoIdx {
		t.Fatalf("content %q lists opinions out of speaking order", content)
	}
	if !strings.Contains(rationale, "2") {
		t.Fatalf("rationale %q does not mention round count", rationale)
	}
}

func TestSummarizeSkipsTimeouts(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	names := map[uuid.UUID]string{a: "alpha", b: "bravo"}

	opinions := []*models.Opinion{
		{AgentID: a, Content: TimeoutContent, IsTimeout: true},
		{AgentID: b, Content: "looks fine"},
	}

	content, _ := roundSummarizer{}.Summarize("release", 1, names, opinions)

	if strings.Contains(content, TimeoutContent) {
		t.Fatalf("content %q includes a timeout placeholder", content)
	}
	if !strings.Contains(content, "bravo: looks fine") {
		t.Fatalf("content %q lacks the real opinion", content)
	}
}

func TestSummarizeAllTimeouts(t *testing.T) {
	a := uuid.New()
	opinions := []*models.Opinion{
		{AgentID: a, Content: TimeoutContent, IsTimeout: true},
	}

	content, rationale := roundSummarizer{}.Summarize("release", 1, map[uuid.UUID]string{}, opinions)

	if content == "" || rationale == "" {
		t.Fatal("content and rationale must be non-empty even without substantive opinions")
	}
}

func TestSummarizeFallsBackToAgentID(t *testing.T) {
	a := uuid.New()
	opinions := []*models.Opinion{{AgentID: a, Content: "fine"}}

	content, _ := roundSummarizer{}.Summarize("release", 1, map[uuid.UUID]string{}, opinions)

	if !strings.Contains(content, a.String()) {
		t.Fatalf("content %q does not fall back to agent id", content)
	}
}
