package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entl/termstate/internal/logfile"
)

const (
	caption      = "Terminal 1"
	title        = "/Users/roger/R"
	handle1      = "unit-test01"
	bogusHandle1 = "unit-test03"
	sequence     = 1
	maxLines     = 1000
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	return NewFactory(logfile.NewStore(t.TempDir()), nil, nil)
}

func terminalOptions(h string) Options {
	return Options{
		Caption:          caption,
		Title:            title,
		Handle:           h,
		TerminalSequence: sequence,
		AllowRestart:     true,
		InteractionMode:  InteractionAlways,
		MaxOutputLines:   maxLines,
	}
}

func TestNewReadsProperties(t *testing.T) {
	p := newTestFactory(t).New(terminalOptions(handle1))

	assert.Equal(t, caption, p.Caption())
	assert.Equal(t, title, p.Title())
	assert.Equal(t, handle1, p.Handle())
	assert.Equal(t, sequence, p.TerminalSequence())
	assert.True(t, p.AllowRestart())
	assert.Equal(t, InteractionAlways, p.InteractionMode())
	assert.Equal(t, maxLines, p.MaxOutputLines())

	assert.False(t, p.ShowOnOutput())
	_, ok := p.ExitCode()
	assert.False(t, ok, "exit code starts absent")
	assert.True(t, p.HasChildProcs(), "new records assume child processes")
	assert.True(t, p.IsTerminal())
}

func TestEnsureHandle(t *testing.T) {
	p := newTestFactory(t).New(Options{
		TerminalSequence: NoTerminal,
		InteractionMode:  InteractionNever,
	})

	assert.Empty(t, p.Handle())

	p.EnsureHandle()
	h := p.Handle()
	assert.NotEmpty(t, h)
	assert.True(t, logfile.ValidHandle(h))

	p.EnsureHandle()
	assert.Equal(t, h, p.Handle(), "EnsureHandle is idempotent")
}

func TestEnsureHandleKeepsSuppliedHandle(t *testing.T) {
	p := newTestFactory(t).New(terminalOptions(handle1))
	p.EnsureHandle()
	assert.Equal(t, handle1, p.Handle())
}

func TestAppendAssignsHandle(t *testing.T) {
	f := newTestFactory(t)

	for _, seq := range []int{NoTerminal, sequence} {
		p := f.New(Options{TerminalSequence: seq, MaxOutputLines: maxLines})
		require.Empty(t, p.Handle())
		require.NoError(t, p.AppendOutput("x"))
		assert.NotEmpty(t, p.Handle())
	}
}

func TestChangeProperties(t *testing.T) {
	p := newTestFactory(t).New(terminalOptions(handle1))

	p.SetCaption("other caption")
	assert.Equal(t, "other caption", p.Caption())

	p.SetTitle("other title")
	assert.Equal(t, "other title", p.Title())

	p.SetTerminalSequence(sequence + 1)
	assert.Equal(t, sequence+1, p.TerminalSequence())
	assert.True(t, p.IsTerminal())

	p.SetAllowRestart(false)
	assert.False(t, p.AllowRestart())

	p.SetInteractionMode(InteractionNever)
	assert.Equal(t, InteractionNever, p.InteractionMode())

	p.SetMaxOutputLines(maxLines + 1)
	assert.Equal(t, maxLines+1, p.MaxOutputLines())

	p.SetShowOnOutput(true)
	assert.True(t, p.ShowOnOutput())

	p.SetHasChildProcs(false)
	assert.False(t, p.HasChildProcs())

	p.SetShellType("zsh")
	p.SetCwd("/tmp")
	p.SetSize(120, 40)
	p.SetAltBufferActive(true)
	p.SetZombie(true)
	assert.Equal(t, "zsh", p.ShellType())
	assert.Equal(t, "/tmp", p.Cwd())
	assert.Equal(t, 120, p.Cols())
	assert.Equal(t, 40, p.Rows())
	assert.True(t, p.AltBufferActive())
	assert.True(t, p.Zombie())

	assert.Equal(t, handle1, p.Handle())
}

func TestExitCode(t *testing.T) {
	p := newTestFactory(t).New(terminalOptions(handle1))

	p.SetExitCode(14)
	code, ok := p.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 14, code)

	p.SetExitCode(0)
	code, ok = p.ExitCode()
	assert.True(t, ok, "zero is a real exit code")
	assert.Equal(t, 0, code)

	p.ClearExitCode()
	_, ok = p.ExitCode()
	assert.False(t, ok)
}

func TestEquivalent(t *testing.T) {
	f := newTestFactory(t)

	first := f.New(terminalOptions(handle1))
	second := f.New(terminalOptions(handle1))
	assert.True(t, first.Equivalent(second))

	first.SetExitCode(1)
	second.SetExitCode(12)
	assert.False(t, first.Equivalent(second), "different exit codes")

	second.SetExitCode(1)
	assert.True(t, first.Equivalent(second))

	second.ClearExitCode()
	assert.False(t, first.Equivalent(second), "absent versus present exit code")
}

func TestEquivalentIgnoresBufferAndGeometry(t *testing.T) {
	f := newTestFactory(t)

	opts := terminalOptions(handle1)
	opts.TerminalSequence = NoTerminal
	first := f.New(opts)
	second := f.New(opts)

	require.NoError(t, first.AppendOutput("only in first\n"))
	first.SetSize(80, 24)
	first.SetCwd("/elsewhere")
	assert.True(t, first.Equivalent(second))
}

func TestEquivalentFieldByField(t *testing.T) {
	f := newTestFactory(t)

	mutations := map[string]func(p *ProcessInfo){
		"caption":         func(p *ProcessInfo) { p.SetCaption("x") },
		"title":           func(p *ProcessInfo) { p.SetTitle("x") },
		"sequence":        func(p *ProcessInfo) { p.SetTerminalSequence(7) },
		"allowRestart":    func(p *ProcessInfo) { p.SetAllowRestart(false) },
		"interactionMode": func(p *ProcessInfo) { p.SetInteractionMode(InteractionPossible) },
		"maxOutputLines":  func(p *ProcessInfo) { p.SetMaxOutputLines(3) },
		"showOnOutput":    func(p *ProcessInfo) { p.SetShowOnOutput(true) },
		"hasChildProcs":   func(p *ProcessInfo) { p.SetHasChildProcs(false) },
		"exitCode":        func(p *ProcessInfo) { p.SetExitCode(2) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			base := f.New(terminalOptions(handle1))
			changed := f.New(terminalOptions(handle1))
			mutate(changed)
			assert.False(t, base.Equivalent(changed))
		})
	}

	other := f.New(terminalOptions(bogusHandle1))
	assert.False(t, f.New(terminalOptions(handle1)).Equivalent(other), "handle")
}

func TestInteractionModeString(t *testing.T) {
	assert.Equal(t, "never", InteractionNever.String())
	assert.Equal(t, "possible", InteractionPossible.String())
	assert.Equal(t, "always", InteractionAlways.String())
	assert.Equal(t, "InteractionMode(9)", InteractionMode(9).String())
}

func TestZeroFactory(t *testing.T) {
	var f Factory

	p := f.New(Options{TerminalSequence: 1})
	p.EnsureHandle()
	assert.NotEmpty(t, p.Handle())
	assert.ErrorIs(t, p.AppendOutput("lost"), ErrNoLogStore)

	restored, err := f.FromJSON(map[string]any{
		keyHandle:           "inline",
		keyTerminalSequence: 1,
		keyBuffer:           "ignored",
	})
	require.NoError(t, err)
	assert.Empty(t, restored.BufferedOutput())

	procs, err := f.DecodeAll([]byte(`[42, {"handle": 7}, {"handle": "kept"}]`))
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "kept", procs[0].Handle())
}
