package play

import "github.com/narimato/narimato/internal/storage/models"

// The insertion engine positions a newly liked card into an existing
// ranking with binary-search comparisons. Rankings run from
// most-preferred (index 0) to least; beating a card constrains the new
// card strictly above it, losing constrains it strictly below. All
// functions here are pure.

// Bounds is the half-open index window [Start, End) of the ranking
// still consistent with the card's recorded comparisons. Collapsed
// means the position is fully determined.
type Bounds struct {
	Start     int
	End       int
	Collapsed bool
}

// Comparison is the next vote the engine needs to narrow a card's
// position.
type Comparison struct {
	NewCard     string
	CompareWith string
	Bounds      Bounds
	// InformationGain is 1/window: how much of the remaining
	// uncertainty this single comparison resolves.
	InformationGain float64
}

// searchBounds accumulates the index window for card over ranking from
// every recorded vote involving card.
func searchBounds(ranking []string, card string, votes []models.Vote) Bounds {
	start, end := 0, len(ranking)

	for _, v := range votes {
		var other string
		switch card {
		case v.CardA:
			other = v.CardB
		case v.CardB:
			other = v.CardA
		default:
			continue
		}

		i := indexOf(ranking, other)
		if i < 0 {
			continue
		}
		if v.Winner == card {
			// card beat other: it ranks strictly above index i.
			if i < end {
				end = i
			}
		} else {
			// card lost to other: strictly below index i.
			if i+1 > start {
				start = i + 1
			}
		}
	}

	return Bounds{Start: start, End: end, Collapsed: start >= end}
}

// nextComparison returns the comparison needed to keep positioning
// card, or nil when the position is already determined. A pair that was
// already voted on is never proposed again.
func nextComparison(ranking []string, card string, votes []models.Vote) *Comparison {
	if len(ranking) == 0 || indexOf(ranking, card) >= 0 {
		return nil
	}

	bounds := searchBounds(ranking, card, votes)
	if bounds.Collapsed {
		return nil
	}

	compared := comparedSet(card, votes)
	window := bounds.End - bounds.Start

	mid := bounds.Start + window/2
	candidate := ""
	if !compared[ranking[mid]] {
		candidate = ranking[mid]
	} else {
		// Midpoint exhausted: fall back to the first un-compared card
		// in the window.
		for i := bounds.Start; i < bounds.End; i++ {
			if !compared[ranking[i]] {
				candidate = ranking[i]
				break
			}
		}
	}
	if candidate == "" {
		// Every card in the window was already compared yet the bounds
		// did not collapse. Treat as determined at Start; the caller
		// will insert there.
		return nil
	}

	return &Comparison{
		NewCard:         card,
		CompareWith:     candidate,
		Bounds:          bounds,
		InformationGain: 1 / float64(window),
	}
}

// insertAt returns ranking with card inserted at the bounds-determined
// position, plus whether insertion happened. Inserting a card already
// present is a no-op reported as inserted. When the bounds have not
// collapsed the ranking is returned unchanged and inserted is false:
// more comparisons are needed.
func insertAt(ranking []string, card string, votes []models.Vote) ([]string, bool) {
	if indexOf(ranking, card) >= 0 {
		return ranking, true
	}

	bounds := searchBounds(ranking, card, votes)
	if !bounds.Collapsed {
		// An un-collapsed window with no candidates left is forced to
		// resolve at Start (defensive; indicates inconsistent votes).
		if nextComparison(ranking, card, votes) != nil {
			return ranking, false
		}
	}

	pos := bounds.Start
	if pos > len(ranking) {
		pos = len(ranking)
	}

	out := make([]string, 0, len(ranking)+1)
	out = append(out, ranking[:pos]...)
	out = append(out, card)
	out = append(out, ranking[pos:]...)
	return out, true
}

// comparedSet collects the cards already voted against card.
func comparedSet(card string, votes []models.Vote) map[string]bool {
	set := make(map[string]bool)
	for _, v := range votes {
		switch card {
		case v.CardA:
			set[v.CardB] = true
		case v.CardB:
			set[v.CardA] = true
		}
	}
	return set
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
