package services

type LetterState string

const (
	LetterCorrect LetterState = "correct"
	LetterPresent LetterState = "present"
	LetterAbsent  LetterState = "absent"
)

// ScoreGuess marks each letter of guess against target. Exact matches are
// taken first; presence is limited by the letters left over.
func ScoreGuess(guess, target string) []LetterState {
	g, t := []rune(guess), []rune(target)
	states := make([]LetterState, len(g))

	remaining := map[rune]int{}
	for i, r := range g {
		if i < len(t) && t[i] == r {
			states[i] = LetterCorrect
			continue
		}
		states[i] = LetterAbsent
	}
	for i, r := range t {
		if i >= len(g) || g[i] != r {
			remaining[r]++
		}
	}

	for i, r := range g {
		if states[i] == LetterCorrect {
			continue
		}
		if remaining[r] > 0 {
			states[i] = LetterPresent
			remaining[r]--
		}
	}
	return states
}
