package history

import "strings"

// Turn is a single message in a chat transcript.
type Turn struct {
	Role string
	Text string
}

// WindowLog summarizes the windowing decision.
type WindowLog struct {
	Tokens  int // tokens of kept turns
	Dropped int // turns removed to fit the budget
}

// Estimator estimates token usage of text content.
type Estimator func(text string) int

// Windower trims a transcript to a token budget, keeping the most recent turns.
type Windower struct {
	estimate Estimator
	budget   int
}

// Option configures the Windower.
type Option func(*Windower)

// WithEstimator sets the token estimator. Defaults to rune length.
func WithEstimator(est Estimator) Option {
	return func(w *Windower) {
		if est != nil {
			w.estimate = est
		}
	}
}

// WithBudget sets the maximum token budget. Defaults to a large value (1e9).
func WithBudget(n int) Option {
	return func(w *Windower) {
		if n > 0 {
			w.budget = n
		}
	}
}

// New creates a new Windower.
func New(opts ...Option) *Windower {
	w := &Windower{
		estimate: func(s string) int { return len([]rune(s)) },
		budget:   1_000_000_000,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Window returns the suffix of turns that fits the token budget.
// Behavior:
// - Turns are dropped oldest first; a turn is never truncated.
// - The final turn is always kept, even when it alone exceeds the budget.
// - Kept turns stay in chronological order.
func (w *Windower) Window(turns []Turn) ([]Turn, WindowLog) {
	if len(turns) == 0 {
		return nil, WindowLog{}
	}
	budget := w.budget
	tokens := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := w.estimate(turns[i].Text)
		if cost > budget && start < len(turns) {
			break
		}
		budget -= cost
		tokens += cost
		start = i
	}
	out := make([]Turn, len(turns)-start)
	copy(out, turns[start:])
	return out, WindowLog{Tokens: tokens, Dropped: start}
}

// Transcript renders turns as "role: text" lines for prompt interpolation.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}
