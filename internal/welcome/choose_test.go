package welcome

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestChoose_EmptyListFallsBackToDefault(t *testing.T) {
	panicIntn := func(n int) int {
		t.Fatal("intn should not be called for an empty list")
		return 0
	}

	if got := Choose(KindJoin, nil, panicIntn); got != DefaultJoinBody {
		t.Errorf("expected join default %q, got %q", DefaultJoinBody, got)
	}

	if got := Choose(KindLeave, []Template{}, panicIntn); got != DefaultLeaveBody {
		t.Errorf("expected leave default %q, got %q", DefaultLeaveBody, got)
	}
}

func TestChoose_SingleTemplate(t *testing.T) {
	templates := []Template{{ID: 7, Body: "only one"}}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10; i++ {
		if got := Choose(KindJoin, templates, rng.IntN); got != "only one" {
			t.Fatalf("expected %q, got %q", "only one", got)
		}
	}
}

func TestChoose_UniformAcrossTemplates(t *testing.T) {
	templates := []Template{
		{ID: 1, Body: "a"},
		{ID: 2, Body: "b"},
		{ID: 4, Body: "c"},
		{ID: 9, Body: "d"},
	}

	const draws = 40000
	rng := rand.New(rand.NewPCG(42, 1337))

	counts := make(map[string]int, len(templates))
	for i := 0; i < draws; i++ {
		counts[Choose(KindJoin, templates, rng.IntN)]++
	}

	if len(counts) != len(templates) {
		t.Fatalf("expected all %d templates drawn, got %d", len(templates), len(counts))
	}

	// Each body should land within 5% of the expected uniform share.
	expected := float64(draws) / float64(len(templates))
	for body, count := range counts {
		if math.Abs(float64(count)-expected) > expected*0.05 {
			t.Errorf("template %q drawn %d times, expected about %.0f", body, count, expected)
		}
	}
}
