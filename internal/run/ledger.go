package run

import "github.com/zpdzap/wsport/internal/config"

// State of one step in the ledger.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Step names, in execution order.
const (
	StepAcquire = "new windscribe port"
	StepSync    = "update qbittorrent port"
	StepEnv     = "update docker env"
	StepRestart = "restart docker containers"
)

// Entry is one ledger line.
type Entry struct {
	Step   string `json:"step"`
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Ledger records the outcome of each step of a run in a fixed order. It is
// only ever moved forward.
type Ledger struct {
	entries []Entry
	index   map[string]int
}

// NewLedger returns a ledger with every step enabled by f pending.
func NewLedger(f config.Features) *Ledger {
	steps := []string{StepAcquire, StepSync}
	if f.Stack {
		steps = append(steps, StepEnv, StepRestart)
	}
	l := &Ledger{index: make(map[string]int, len(steps))}
	for i, s := range steps {
		l.entries = append(l.entries, Entry{Step: s, State: StatePending})
		l.index[s] = i
	}
	return l
}

// Mark sets the state of step. Unknown steps are ignored.
func (l *Ledger) Mark(step string, state State) {
	if i, ok := l.index[step]; ok {
		l.entries[i].State = state
	}
}

// Detail attaches free text to step.
func (l *Ledger) Detail(step, detail string) {
	if i, ok := l.index[step]; ok {
		l.entries[i].Detail = detail
	}
}

// Has reports whether step is part of this run.
func (l *Ledger) Has(step string) bool {
	_, ok := l.index[step]
	return ok
}

// Get returns the entry for step.
func (l *Ledger) Get(step string) (Entry, bool) {
	i, ok := l.index[step]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Snapshot returns a copy of the entries in order.
func (l *Ledger) Snapshot() []Entry {
	return append([]Entry(nil), l.entries...)
}
