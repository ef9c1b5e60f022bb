package session

import (
	"sync"
	"time"

	"github.com/entl/termstate/internal/console"
)

// Process is a registered console process record together with the lock
// that serializes every access to it.
type Process struct {
	Handle    string
	CreatedAt time.Time

	mu   sync.Mutex
	info *console.ProcessInfo
}

// Do runs fn with exclusive access to the record.
func (p *Process) Do(fn func(info *console.ProcessInfo) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.info)
}

// Summary returns a point-in-time view of the record.
func (p *Process) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Summary{
		Handle:           p.info.Handle(),
		Caption:          p.info.Caption(),
		Title:            p.info.Title(),
		TerminalSequence: p.info.TerminalSequence(),
		Mode:             p.info.Buffer().Mode().String(),
		HasChildProcs:    p.info.HasChildProcs(),
	}
	if code, ok := p.info.ExitCode(); ok {
		s.ExitCode = &code
	}
	return s
}

// Summary is the public representation of a process record.
type Summary struct {
	Handle           string `json:"handle"`
	Caption          string `json:"caption"`
	Title            string `json:"title"`
	TerminalSequence int    `json:"terminal_sequence"`
	Mode             string `json:"mode"`
	HasChildProcs    bool   `json:"has_child_procs"`
	ExitCode         *int   `json:"exit_code,omitempty"` // nil while running
}
