// Package console holds the persisted metadata of a console process and the
// buffer that keeps its recent output.
//
// A record with terminal sequence NoTerminal is a legacy console: its output
// lives in an EmbeddedBuffer and is serialized with the metadata. Any other
// sequence marks a terminal whose output goes to a log file named by the
// record's handle.
//
// Records do no locking. The owner serializes appends, reads and encoding on
// a record.
package console

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/entl/termstate/internal/handle"
)

// NoTerminal is the terminal sequence of legacy non-terminal consoles.
const NoTerminal = 0

// ErrNoLogStore is returned when an external buffer has no log store.
var ErrNoLogStore = errors.New("console: no log store configured")

// InteractionMode describes whether the process accepts user input.
type InteractionMode int

const (
	InteractionNever InteractionMode = iota
	InteractionPossible
	InteractionAlways
)

func (m InteractionMode) String() string {
	switch m {
	case InteractionNever:
		return "never"
	case InteractionPossible:
		return "possible"
	case InteractionAlways:
		return "always"
	default:
		return fmt.Sprintf("InteractionMode(%d)", int(m))
	}
}

func (m InteractionMode) valid() bool {
	return m >= InteractionNever && m <= InteractionAlways
}

// Options are the constructor arguments of a record.
type Options struct {
	Caption          string
	Title            string
	Handle           string // empty means assign on first use
	TerminalSequence int
	AllowRestart     bool
	InteractionMode  InteractionMode
	MaxOutputLines   int
}

// Factory binds the collaborators shared by all records of a session. The
// zero value generates handles with handle.Default, discards log output and
// has no log store.
type Factory struct {
	logs    LogStore
	handles handle.Generator
	logger  *zap.Logger
}

// NewFactory creates a factory. A nil generator falls back to
// handle.Default and a nil logger to a no-op logger.
func NewFactory(logs LogStore, handles handle.Generator, logger *zap.Logger) *Factory {
	if handles == nil {
		handles = handle.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logs: logs, handles: handles, logger: logger}
}

func (f *Factory) generator() handle.Generator {
	if f.handles == nil {
		return handle.Default()
	}
	return f.handles
}

func (f *Factory) log() *zap.Logger {
	if f.logger == nil {
		return zap.NewNop()
	}
	return f.logger
}

// New creates a record. Freshly created records assume the process has
// child processes until told otherwise.
func (f *Factory) New(opts Options) *ProcessInfo {
	return &ProcessInfo{
		caption:          opts.Caption,
		title:            opts.Title,
		handle:           opts.Handle,
		terminalSequence: opts.TerminalSequence,
		allowRestart:     opts.AllowRestart,
		interactionMode:  opts.InteractionMode,
		maxOutputLines:   opts.MaxOutputLines,
		hasChildProcs:    true,
		buffer:           newBuffer(opts.TerminalSequence, f.logs),
		factory:          f,
	}
}

// ProcessInfo is the persisted metadata of one console process.
type ProcessInfo struct {
	caption          string
	title            string
	handle           string
	terminalSequence int
	allowRestart     bool
	interactionMode  InteractionMode
	maxOutputLines   int
	showOnOutput     bool
	hasChildProcs    bool
	exitCode         *int

	shellType       string
	cwd             string
	cols            int
	rows            int
	altBufferActive bool
	zombie          bool

	buffer  OutputBuffer
	factory *Factory
}

func (p *ProcessInfo) Caption() string        { return p.caption }
func (p *ProcessInfo) SetCaption(c string)    { p.caption = c }
func (p *ProcessInfo) Title() string          { return p.title }
func (p *ProcessInfo) SetTitle(t string)      { p.title = t }
func (p *ProcessInfo) AllowRestart() bool     { return p.allowRestart }
func (p *ProcessInfo) SetAllowRestart(b bool) { p.allowRestart = b }
func (p *ProcessInfo) ShowOnOutput() bool     { return p.showOnOutput }
func (p *ProcessInfo) SetShowOnOutput(b bool) { p.showOnOutput = b }

// HasChildProcs reports whether the process is believed to have running
// children.
func (p *ProcessInfo) HasChildProcs() bool     { return p.hasChildProcs }
func (p *ProcessInfo) SetHasChildProcs(b bool) { p.hasChildProcs = b }

func (p *ProcessInfo) InteractionMode() InteractionMode     { return p.interactionMode }
func (p *ProcessInfo) SetInteractionMode(m InteractionMode) { p.interactionMode = m }

func (p *ProcessInfo) ShellType() string         { return p.shellType }
func (p *ProcessInfo) SetShellType(s string)     { p.shellType = s }
func (p *ProcessInfo) Cwd() string               { return p.cwd }
func (p *ProcessInfo) SetCwd(dir string)         { p.cwd = dir }
func (p *ProcessInfo) Cols() int                 { return p.cols }
func (p *ProcessInfo) Rows() int                 { return p.rows }
func (p *ProcessInfo) AltBufferActive() bool     { return p.altBufferActive }
func (p *ProcessInfo) SetAltBufferActive(b bool) { p.altBufferActive = b }

// Zombie reports whether the process exited but the record is kept so its
// output stays viewable.
func (p *ProcessInfo) Zombie() bool     { return p.zombie }
func (p *ProcessInfo) SetZombie(b bool) { p.zombie = b }

// SetSize records the terminal dimensions.
func (p *ProcessInfo) SetSize(cols, rows int) {
	p.cols = cols
	p.rows = rows
}

// Handle returns the record's handle, which is empty until EnsureHandle runs
// or output is appended.
func (p *ProcessInfo) Handle() string {
	return p.handle
}

// EnsureHandle assigns a generated handle if the record has none.
func (p *ProcessInfo) EnsureHandle() {
	if p.handle == "" {
		p.handle = p.factory.generator().Generate()
	}
}

// TerminalSequence returns the tab slot, or NoTerminal.
func (p *ProcessInfo) TerminalSequence() int {
	return p.terminalSequence
}

// SetTerminalSequence changes the tab slot. Moving to or from NoTerminal
// switches the buffer to a fresh, empty buffer of the other mode. A log file
// written before the switch stays on disk under the same handle.
func (p *ProcessInfo) SetTerminalSequence(seq int) {
	wasEmbedded := p.terminalSequence == NoTerminal
	p.terminalSequence = seq
	if wasEmbedded != (seq == NoTerminal) {
		p.buffer = newBuffer(seq, p.factory.logs)
	}
}

// IsTerminal reports whether output goes to an external log file.
func (p *ProcessInfo) IsTerminal() bool {
	return p.buffer.Mode() == ModeExternal
}

// Buffer returns the record's output buffer.
func (p *ProcessInfo) Buffer() OutputBuffer {
	return p.buffer
}

func (p *ProcessInfo) MaxOutputLines() int {
	return p.maxOutputLines
}

// SetMaxOutputLines changes the line cap and trims an embedded buffer to it.
func (p *ProcessInfo) SetMaxOutputLines(n int) {
	p.maxOutputLines = n
	if b, ok := p.buffer.(*EmbeddedBuffer); ok {
		b.trim(n)
	}
}

// ExitCode returns the exit code and whether one was recorded.
func (p *ProcessInfo) ExitCode() (int, bool) {
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}

func (p *ProcessInfo) SetExitCode(code int) {
	p.exitCode = &code
}

// ClearExitCode marks the process as running again, e.g. after a restart.
func (p *ProcessInfo) ClearExitCode() {
	p.exitCode = nil
}

// Equivalent compares the identifying scalar fields of two records. Buffer
// contents and terminal geometry are not compared.
func (p *ProcessInfo) Equivalent(o *ProcessInfo) bool {
	if p == nil || o == nil {
		return p == o
	}
	pCode, pOK := p.ExitCode()
	oCode, oOK := o.ExitCode()
	return p.caption == o.caption &&
		p.title == o.title &&
		p.handle == o.handle &&
		p.terminalSequence == o.terminalSequence &&
		p.allowRestart == o.allowRestart &&
		p.interactionMode == o.interactionMode &&
		p.maxOutputLines == o.maxOutputLines &&
		p.showOnOutput == o.showOnOutput &&
		pOK == oOK && pCode == oCode &&
		p.hasChildProcs == o.hasChildProcs
}

// AppendOutput adds process output to the buffer, assigning a handle first
// if needed.
func (p *ProcessInfo) AppendOutput(text string) error {
	p.EnsureHandle()
	switch b := p.buffer.(type) {
	case *EmbeddedBuffer:
		b.append(text, p.maxOutputLines)
		return nil
	case *ExternalBuffer:
		if b.logs == nil {
			return ErrNoLogStore
		}
		return b.logs.Append(p.handle, text)
	default:
		panic(fmt.Sprintf("console: unhandled buffer %T", b))
	}
}

// AppendOutputRune adds a single character of output.
func (p *ProcessInfo) AppendOutputRune(r rune) error {
	return p.AppendOutput(string(r))
}

// BufferedOutput returns the retained output of an embedded buffer. It is
// empty for terminals.
func (p *ProcessInfo) BufferedOutput() string {
	if b, ok := p.buffer.(*EmbeddedBuffer); ok {
		return b.Text()
	}
	return ""
}

// SavedBuffer returns the contents of a terminal's log file. It is empty when
// no log exists and for embedded buffers.
func (p *ProcessInfo) SavedBuffer() (string, error) {
	b, ok := p.buffer.(*ExternalBuffer)
	if !ok || p.handle == "" {
		return "", nil
	}
	if b.logs == nil {
		return "", ErrNoLogStore
	}
	return b.logs.Read(p.handle)
}

// SavedBufferChunk returns one chunk of a terminal's log and whether more
// chunks follow.
func (p *ProcessInfo) SavedBufferChunk(index int) (string, bool, error) {
	b, ok := p.buffer.(*ExternalBuffer)
	if !ok || p.handle == "" {
		return "", false, nil
	}
	if b.logs == nil {
		return "", false, ErrNoLogStore
	}
	return b.logs.ReadChunk(p.handle, index)
}

// Output returns the retained output for either buffer mode.
func (p *ProcessInfo) Output() (string, error) {
	if p.IsTerminal() {
		return p.SavedBuffer()
	}
	return p.BufferedOutput(), nil
}

// DeleteLogFile removes a terminal's log file. It is a no-op for embedded
// buffers and for logs that do not exist.
func (p *ProcessInfo) DeleteLogFile() error {
	b, ok := p.buffer.(*ExternalBuffer)
	if !ok || p.handle == "" {
		return nil
	}
	if b.logs == nil {
		return ErrNoLogStore
	}
	return b.logs.Delete(p.handle)
}
