package proximity

import "math"

// NoScoreFilter disables score filtering.
const NoScoreFilter float32 = math.MaxFloat32

// FilterByScore drops scored positions whose score exceeds maxScore. Lower
// scores are stronger. The input is never modified; when nothing is dropped
// the input slice is returned as is.
func FilterByScore(positions []Position, maxScore float32) []Position {
	if maxScore == NoScoreFilter {
		return positions
	}
	limit := float64(maxScore)
	var kept []Position
	for i, p := range positions {
		if p.HasScore && float64(p.Score) > limit {
			if kept == nil {
				kept = make([]Position, i, len(positions))
				copy(kept, positions[:i])
			}
			continue
		}
		if kept != nil {
			kept = append(kept, p)
		}
	}
	if kept == nil {
		return positions
	}
	return kept
}

// DroppedByScore counts the positions of l that FilterByScore would drop.
func (l *PositionList) DroppedByScore(maxScore float32) int {
	if l == nil || maxScore == NoScoreFilter {
		return 0
	}
	limit := float64(maxScore)
	n := 0
	for _, p := range l.positions {
		if p.HasScore && float64(p.Score) > limit {
			n++
		}
	}
	return n
}
