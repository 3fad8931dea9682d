// Package history keeps a small JSON record of recent runs under the project
// state directory, so that `wsport status` can answer without a browser.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zpdzap/wsport/internal/config"
	"github.com/zpdzap/wsport/internal/run"
)

// Keep is how many runs are retained.
const Keep = 20

// Record is the persisted view of one run.
type Record struct {
	RunID       string      `json:"run_id"`
	ExitCode    int         `json:"exit_code"`
	Port        string      `json:"port,omitempty"`
	Error       string      `json:"error,omitempty"`
	Interrupted bool        `json:"interrupted,omitempty"`
	FinishedAt  time.Time   `json:"finished_at"`
	Steps       []run.Entry `json:"steps"`
}

// State is the file content. Runs is newest first.
type State struct {
	Runs []Record `json:"runs"`
}

// Last returns the most recent run.
func (s *State) Last() (Record, bool) {
	if len(s.Runs) == 0 {
		return Record{}, false
	}
	return s.Runs[0], true
}

// LastPort returns the port of the most recent successful run.
func (s *State) LastPort() (string, bool) {
	for _, r := range s.Runs {
		if r.ExitCode == run.ExitOK && r.Port != "" {
			return r.Port, true
		}
	}
	return "", false
}

// Store reads and writes the history file of one project directory.
type Store struct {
	projectDir string
}

func NewStore(projectDir string) *Store {
	return &Store{projectDir: projectDir}
}

// Path of the history file.
func (s *Store) Path() string {
	return filepath.Join(s.projectDir, config.Dir, config.StateFile)
}

// Load returns the stored state. A missing file is an empty history.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return &st, nil
}

func (s *Store) save(st *State) error {
	dir := filepath.Join(s.projectDir, config.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	return os.WriteFile(s.Path(), data, 0o644)
}

// Record prepends o to the history and trims it to Keep entries.
func (s *Store) Record(o run.Outcome) error {
	st, err := s.Load()
	if err != nil {
		// a corrupt file should not block recording new runs
		st = &State{}
	}
	rec := Record{
		RunID:       o.RunID,
		ExitCode:    o.ExitCode,
		Port:        o.Port,
		Error:       o.Error,
		Interrupted: o.Interrupted,
		FinishedAt:  o.FinishedAt,
		Steps:       o.Ledger,
	}
	st.Runs = append([]Record{rec}, st.Runs...)
	if len(st.Runs) > Keep {
		st.Runs = st.Runs[:Keep]
	}
	return s.save(st)
}
