package progress

// maxMistakePath bounds how far a player can type past a mistake before
// backspacing their way out.
const maxMistakePath = 10

// Counters is the final tally of a run, consumed by scoring.
type Counters struct {
	Pos              int
	Length           int
	Keystrokes       int
	Mistakes         int
	MistakePositions []int
}

// Engine is the per-player typing cursor state machine over a typeable text.
//
// The engine has two states. In the normal state each keystroke is compared
// against the target character at the cursor; a match advances the cursor and
// a mismatch (anywhere but the final character) opens a mistake path. While
// mistaken, keystrokes grow the mistake path up to its bound without ever
// being compared against the target, and only backspace retreats it; when the
// path empties the engine is back at the original mismatch position with the
// mistyped character still to be corrected.
//
// The same key sequence always produces the same final counters.
type Engine struct {
	text []rune

	pos              int
	keystrokes       int
	mistakes         int
	mistakePositions []int

	mistaken bool
	pathLen  int

	completed bool
}

// New creates an engine over the given typeable text.
func New(typeable string) *Engine {
	return &Engine{text: []rune(typeable)}
}

// Key processes one typed character. It returns true exactly once, on the
// keystroke that completes the text.
func (e *Engine) Key(ch rune) bool {
	if e.completed || len(e.text) == 0 {
		return false
	}
	if e.mistaken {
		e.mistakePathKey()
		return false
	}
	if ch == e.text[e.pos] {
		return e.correctKey()
	}
	e.incorrectKey()
	return false
}

// Backspace retreats the mistake path by one. It is meaningful only while
// mistaken; otherwise it is ignored.
func (e *Engine) Backspace() {
	if e.completed || !e.mistaken {
		return
	}
	e.pathLen--
	e.keystrokes++
	if e.pathLen == 0 {
		e.mistaken = false
	}
}

func (e *Engine) correctKey() bool {
	e.pos++
	e.keystrokes++
	if e.pos == len(e.text) {
		e.completed = true
		return true
	}
	return false
}

func (e *Engine) incorrectKey() {
	e.mistakes++
	e.mistakePositions = append(e.mistakePositions, e.pos)
	// A mistake on the final character is recorded but opens no mistake
	// path: there is nothing to type past the end.
	if e.pos < len(e.text)-1 {
		e.mistaken = true
		e.pathLen = 1
		e.keystrokes++
	}
}

func (e *Engine) mistakePathKey() {
	// Keys beyond the bound are accepted but move nothing.
	if e.pathLen < maxMistakePath {
		e.pathLen++
		e.keystrokes++
	}
}

// Pos returns the cursor position, 0 <= pos <= length.
func (e *Engine) Pos() int { return e.pos }

// Length returns the typeable text length in characters.
func (e *Engine) Length() int { return len(e.text) }

// Mistaken reports whether the engine is currently on a mistake path.
func (e *Engine) Mistaken() bool { return e.mistaken }

// MistakePathLen returns the current mistake path length.
func (e *Engine) MistakePathLen() int { return e.pathLen }

// Completed reports whether the cursor has reached the end of the text.
func (e *Engine) Completed() bool { return e.completed }

// Keystrokes returns the number of cursor-moving keystrokes so far.
func (e *Engine) Keystrokes() int { return e.keystrokes }

// Mistakes returns the number of mismatches so far.
func (e *Engine) Mistakes() int { return e.mistakes }

// Counters snapshots the run's tallies.
func (e *Engine) Counters() Counters {
	return Counters{
		Pos:              e.pos,
		Length:           len(e.text),
		Keystrokes:       e.keystrokes,
		Mistakes:         e.mistakes,
		MistakePositions: append([]int(nil), e.mistakePositions...),
	}
}
