package console

import "strings"

// LogStore is the persistence used by external buffers. *logfile.Store
// implements it.
type LogStore interface {
	Append(handle, text string) error
	Read(handle string) (string, error)
	ReadChunk(handle string, index int) (string, bool, error)
	Delete(handle string) error
}

// BufferMode names the buffering strategy of a record.
type BufferMode int

const (
	// ModeEmbedded keeps output in memory and serializes it with the record.
	ModeEmbedded BufferMode = iota
	// ModeExternal writes output to a log file named by the handle.
	ModeExternal
)

func (m BufferMode) String() string {
	switch m {
	case ModeEmbedded:
		return "embedded"
	case ModeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// OutputBuffer is either an *EmbeddedBuffer or an *ExternalBuffer.
type OutputBuffer interface {
	Mode() BufferMode
	outputBuffer()
}

// EmbeddedBuffer holds recent output in memory, capped by line count.
//
// A line is a '\n'-terminated run, plus the trailing partial line when it
// is non-empty. The empty line that starts the very first output is never
// kept.
type EmbeddedBuffer struct {
	text     string
	newlines int
	started  bool
}

// ExternalBuffer forwards output to a LogStore. It keeps nothing in memory.
type ExternalBuffer struct {
	logs LogStore
}

func (*EmbeddedBuffer) Mode() BufferMode { return ModeEmbedded }
func (*ExternalBuffer) Mode() BufferMode { return ModeExternal }

func (*EmbeddedBuffer) outputBuffer() {}
func (*ExternalBuffer) outputBuffer() {}

// Text returns the retained output.
func (b *EmbeddedBuffer) Text() string {
	return b.text
}

// Lines returns the number of retained lines.
func (b *EmbeddedBuffer) Lines() int {
	n := b.newlines
	if b.text != "" && !strings.HasSuffix(b.text, "\n") {
		n++
	}
	return n
}

func (b *EmbeddedBuffer) append(text string, maxLines int) {
	if !b.started && text != "" {
		b.started = true
		text = strings.TrimPrefix(text, "\n")
	}
	b.text += text
	b.newlines += strings.Count(text, "\n")
	b.trim(maxLines)
}

// seed replaces the retained output with previously saved text.
func (b *EmbeddedBuffer) seed(text string, maxLines int) {
	b.text = text
	b.newlines = strings.Count(text, "\n")
	b.started = b.started || text != ""
	b.trim(maxLines)
}

// trim drops whole lines from the head until the cap holds. maxLines <= 0
// disables the cap.
func (b *EmbeddedBuffer) trim(maxLines int) {
	if maxLines <= 0 {
		return
	}
	for b.Lines() > maxLines {
		i := strings.IndexByte(b.text, '\n')
		if i < 0 {
			// a single unterminated line is never split
			return
		}
		b.text = b.text[i+1:]
		b.newlines--
	}
}

func newBuffer(terminalSequence int, logs LogStore) OutputBuffer {
	if terminalSequence == NoTerminal {
		return &EmbeddedBuffer{}
	}
	return &ExternalBuffer{logs: logs}
}
