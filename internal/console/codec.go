package console

import (
	"bytes"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Metadata keys. Renaming any of these breaks restoring saved sessions.
const (
	keyCaption          = "caption"
	keyTitle            = "title"
	keyHandle           = "handle"
	keyTerminalSequence = "terminal_sequence"
	keyAllowRestart     = "allow_restart"
	keyInteractionMode  = "interaction_mode"
	keyMaxOutputLines   = "max_output_lines"
	keyShowOnOutput     = "show_on_output"
	keyHasChildProcs    = "has_child_procs"
	keyExitCode         = "exit_code"
	keyBuffer           = "buffer"
	keyShellType        = "shell_type"
	keyCwd              = "cwd"
	keyCols             = "cols"
	keyRows             = "rows"
	keyAltBufferActive  = "alt_buffer_active"
	keyZombie           = "zombie"
)

// ToJSON returns the structured form of the record. Embedded records carry
// their buffered output; terminals carry only the handle, since the log file
// holds their output.
func (p *ProcessInfo) ToJSON() map[string]any {
	obj := map[string]any{
		keyCaption:          p.caption,
		keyTitle:            p.title,
		keyHandle:           p.handle,
		keyTerminalSequence: p.terminalSequence,
		keyAllowRestart:     p.allowRestart,
		keyInteractionMode:  int(p.interactionMode),
		keyMaxOutputLines:   p.maxOutputLines,
		keyShowOnOutput:     p.showOnOutput,
		keyHasChildProcs:    p.hasChildProcs,
		keyExitCode:         nil,
		keyShellType:        p.shellType,
		keyCwd:              p.cwd,
		keyCols:             p.cols,
		keyRows:             p.rows,
		keyAltBufferActive:  p.altBufferActive,
		keyZombie:           p.zombie,
	}
	if code, ok := p.ExitCode(); ok {
		obj[keyExitCode] = code
	}

	switch b := p.buffer.(type) {
	case *EmbeddedBuffer:
		obj[keyBuffer] = b.Text()
	case *ExternalBuffer:
	default:
		panic(fmt.Sprintf("console: unhandled buffer %T", b))
	}
	return obj
}

// FromJSON rebuilds a record from its structured form. Missing or mistyped
// fields take their defaults; only a handle that is present but not a string
// fails the record, because its log could not be found again.
func (f *Factory) FromJSON(obj map[string]any) (*ProcessInfo, error) {
	if obj == nil {
		return nil, fmt.Errorf("console: nil metadata object")
	}

	h := ""
	if raw, present := obj[keyHandle]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("console: handle has type %T, want string", raw)
		}
		h = s
	}

	mode := InteractionMode(intField(obj, keyInteractionMode, int(InteractionNever)))
	if !mode.valid() {
		mode = InteractionNever
	}

	p := f.New(Options{
		Caption:          stringField(obj, keyCaption, ""),
		Title:            stringField(obj, keyTitle, ""),
		Handle:           h,
		TerminalSequence: intField(obj, keyTerminalSequence, NoTerminal),
		AllowRestart:     boolField(obj, keyAllowRestart, false),
		InteractionMode:  mode,
		MaxOutputLines:   intField(obj, keyMaxOutputLines, 0),
	})
	p.showOnOutput = boolField(obj, keyShowOnOutput, false)
	p.hasChildProcs = boolField(obj, keyHasChildProcs, true)
	if code, ok := numberField(obj, keyExitCode); ok {
		p.SetExitCode(code)
	}
	p.shellType = stringField(obj, keyShellType, "")
	p.cwd = stringField(obj, keyCwd, "")
	p.cols = intField(obj, keyCols, 0)
	p.rows = intField(obj, keyRows, 0)
	p.altBufferActive = boolField(obj, keyAltBufferActive, false)
	p.zombie = boolField(obj, keyZombie, false)

	if text, ok := obj[keyBuffer].(string); ok {
		if b, embedded := p.buffer.(*EmbeddedBuffer); embedded {
			b.seed(text, p.maxOutputLines)
		} else {
			f.log().Debug("ignoring inline buffer of terminal record",
				zap.String("handle", p.handle))
		}
	}
	return p, nil
}

// EncodeAll serializes records as a JSON array. Object keys are sorted so
// unchanged records encode to identical bytes.
func EncodeAll(procs []*ProcessInfo) ([]byte, error) {
	entries := make([]map[string]any, 0, len(procs))
	for _, p := range procs {
		entries = append(entries, p.ToJSON())
	}
	return EncodeObjects(entries)
}

// EncodeObjects serializes structured records taken with ToJSON.
func EncodeObjects(entries []map[string]any) ([]byte, error) {
	if entries == nil {
		entries = []map[string]any{}
	}
	data, err := sonic.ConfigStd.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode console metadata: %w", err)
	}
	return data, nil
}

// DecodeAll restores the records of a JSON array produced by EncodeAll.
// Entries that cannot be restored are logged and skipped. Empty input holds
// no records.
func (f *Factory) DecodeAll(data []byte) ([]*ProcessInfo, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []any
	if err := sonic.ConfigStd.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode console metadata: %w", err)
	}

	procs := make([]*ProcessInfo, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			f.log().Warn("skipping malformed console entry",
				zap.Int("index", i),
				zap.String("type", fmt.Sprintf("%T", entry)))
			continue
		}
		p, err := f.FromJSON(obj)
		if err != nil {
			f.log().Warn("skipping console entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func stringField(obj map[string]any, key, def string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return def
}

func boolField(obj map[string]any, key string, def bool) bool {
	if b, ok := obj[key].(bool); ok {
		return b
	}
	return def
}

func intField(obj map[string]any, key string, def int) int {
	if n, ok := numberField(obj, key); ok {
		return n
	}
	return def
}

// numberField accepts the integer types of in-memory objects and the
// float64 produced by JSON decoding. Fractional values are rejected.
func numberField(obj map[string]any, key string) (int, bool) {
	switch v := obj[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int(v), true
		}
	}
	return 0, false
}
