package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"node.town/wisp/refine"
	"node.town/wisp/session"
	"node.town/wisp/visualizer"
)

const DefaultResultTimeout = 5 * time.Second

// Controller is the part of a session the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Cancel() error
	Reset() error
	Snapshot() session.Snapshot
	Updates() <-chan session.Snapshot
}

// Visualizer is the part of a visualizer.Visualizer the UI draws from.
type Visualizer interface {
	SetListening(ctx context.Context, listening bool)
	Frame(now time.Time) visualizer.Frame
	Status() visualizer.Status
}

// Refiner rewrites finished transcripts in a writing mode.
type Refiner interface {
	Refine(ctx context.Context, raw string) (refine.Result, error)
	Mode() refine.Mode
	SetMode(name string) error
}

// Ticker paces redraws and can be paused while the terminal is unfocused.
type Ticker interface {
	Ticks() <-chan visualizer.Tick
	Pause()
	Resume()
}

type Options struct {
	Controller    Controller
	Visualizer    Visualizer
	Loop          Ticker
	Refiner       Refiner
	Theme         Theme
	Scale         float64
	ResultTimeout time.Duration
	Logger        *log.Logger

	// Copy writes text to the system clipboard.
	Copy func(string) error
	// DarkBackground reports the terminal background for the auto theme.
	DarkBackground func() bool
}

type snapshotMsg session.Snapshot

type tickMsg visualizer.Tick

type hideTranscriptMsg struct{ seq int }

type actionErrMsg struct{ err error }

type copiedMsg struct{ err error }

type refinedMsg struct {
	gen    uint64
	result refine.Result
	err    error
}

type Model struct {
	ctx    context.Context
	opts   Options
	logger *log.Logger

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	theme   Theme
	palette Palette
	raster  *visualizer.Raster
	canvas  string
	frame   visualizer.Frame

	snap           session.Snapshot
	showTranscript bool
	transcriptSeq  int
	refining       bool
	refined        refine.Result
	notice         string
	actionErr      error
	focused        bool
	width          int
	quitting       bool
}

func New(ctx context.Context, opts Options) Model {
	if opts.Scale <= 0 {
		opts.Scale = 0.5
	}
	if opts.ResultTimeout <= 0 {
		opts.ResultTimeout = DefaultResultTimeout
	}
	if opts.Theme == "" {
		opts.Theme = ThemeAuto
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.DarkBackground == nil {
		opts.DarkBackground = lipgloss.HasDarkBackground
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		opts:    opts,
		logger:  opts.Logger,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: s,
		theme:   opts.Theme,
		raster:  visualizer.NewRaster(opts.Scale),
		snap:    opts.Controller.Snapshot(),
		focused: true,
	}
	m.palette = PaletteFor(m.theme, opts.DarkBackground())
	m.spinner.Style = lipgloss.NewStyle().Foreground(m.palette.Accent)
	m.redraw(time.Now())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.opts.Controller.Updates()),
		waitForTick(m.opts.Loop.Ticks()),
		m.spinner.Tick,
	)
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func waitForTick(ticks <-chan visualizer.Tick) tea.Cmd {
	return func() tea.Msg {
		tick, ok := <-ticks
		if !ok {
			return nil
		}
		return tickMsg(tick)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.FocusMsg:
		m.focused = true
		m.opts.Loop.Resume()

	case tea.BlurMsg:
		m.focused = false
		m.opts.Loop.Pause()

	case snapshotMsg:
		cmd := m.applySnapshot(session.Snapshot(msg))
		return m, tea.Batch(cmd, waitForSnapshot(m.opts.Controller.Updates()))

	case tickMsg:
		m.redraw(msg.Time)
		return m, waitForTick(m.opts.Loop.Ticks())

	case hideTranscriptMsg:
		if msg.seq == m.transcriptSeq {
			m.showTranscript = false
		}

	case actionErrMsg:
		m.actionErr = msg.err

	case refinedMsg:
		if !m.refining || msg.gen != m.snap.Generation {
			return m, nil
		}
		m.refining = false
		if msg.err != nil {
			m.logger.Warn("refinement failed", "error", msg.err)
			m.notice = "Refinement failed, showing the raw transcript"
		} else {
			m.refined = msg.result
		}
		return m, m.scheduleHide()

	case copiedMsg:
		if msg.err != nil {
			m.logger.Warn("copy to clipboard failed", "error", msg.err)
			m.notice = "Copy failed: " + msg.err.Error()
		} else {
			m.notice = "Copied to clipboard"
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		switch m.snap.State {
		case session.Idle:
			m.notice = ""
			m.actionErr = nil
			return m, m.start()
		case session.Recording:
			return m, m.call(m.opts.Controller.Stop)
		}

	case key.Matches(msg, m.keys.Cancel):
		if m.snap.State == session.Recording {
			m.showTranscript = false
			m.transcriptSeq++
			return m, m.call(m.opts.Controller.Cancel)
		}

	case key.Matches(msg, m.keys.Copy):
		if text := m.transcriptText(); text != "" {
			copyFn := m.opts.Copy
			return m, func() tea.Msg { return copiedMsg{err: copyFn(text)} }
		}

	case key.Matches(msg, m.keys.Reset):
		m.notice = ""
		m.actionErr = nil
		m.showTranscript = false
		m.transcriptSeq++
		return m, m.call(m.opts.Controller.Reset)

	case key.Matches(msg, m.keys.Mode):
		if m.opts.Refiner == nil {
			return m, nil
		}
		next := refine.NextMode(m.opts.Refiner.Mode().Name)
		if err := m.opts.Refiner.SetMode(next.Name); err != nil {
			m.actionErr = err
			return m, nil
		}
		m.notice = "Writing mode: " + next.Title

	case key.Matches(msg, m.keys.Theme):
		m.theme = m.theme.Next()
		m.palette = PaletteFor(m.theme, m.opts.DarkBackground())
		m.spinner.Style = lipgloss.NewStyle().Foreground(m.palette.Accent)
		m.redraw(time.Now())

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

func (m Model) start() tea.Cmd {
	ctx, ctrl := m.ctx, m.opts.Controller
	return func() tea.Msg {
		if err := ctrl.Start(ctx); err != nil {
			return actionErrMsg{err: err}
		}
		return nil
	}
}

func (m Model) call(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return actionErrMsg{err: err}
		}
		return nil
	}
}

func (m *Model) applySnapshot(snap session.Snapshot) tea.Cmd {
	prev := m.snap
	m.snap = snap

	listening := snap.State == session.Recording
	if listening != (prev.State == session.Recording) {
		m.opts.Visualizer.SetListening(m.ctx, listening)
	}

	if snap.Transcript != "" && (snap.Transcript != prev.Transcript || snap.Generation != prev.Generation) {
		m.showTranscript = true
		m.refined = refine.Result{}
		if m.opts.Refiner != nil {
			m.refining = true
			m.transcriptSeq++
			return m.refineCmd(snap.Generation, snap.Transcript)
		}
		return m.scheduleHide()
	}
	if snap.Transcript == "" {
		m.showTranscript = false
		m.refining = false
		m.refined = refine.Result{}
	}
	return nil
}

func (m *Model) scheduleHide() tea.Cmd {
	m.transcriptSeq++
	seq := m.transcriptSeq
	return tea.Tick(m.opts.ResultTimeout, func(time.Time) tea.Msg {
		return hideTranscriptMsg{seq: seq}
	})
}

func (m Model) refineCmd(gen uint64, raw string) tea.Cmd {
	ctx, r := m.ctx, m.opts.Refiner
	return func() tea.Msg {
		res, err := r.Refine(ctx, raw)
		return refinedMsg{gen: gen, result: res, err: err}
	}
}

// transcriptText is the text on the card: the refined version once it
// exists, otherwise what the service heard.
func (m Model) transcriptText() string {
	if m.refined.Refined {
		return m.refined.Text
	}
	return m.snap.Transcript
}

func (m *Model) redraw(now time.Time) {
	m.frame = m.opts.Visualizer.Frame(now)
	visualizer.Draw(m.raster, m.frame)

	shape := visualizer.PaintIdle
	if m.frame.Active {
		shape = visualizer.PaintActive
	}
	m.canvas = renderCanvas(m.raster, shape, m.palette)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	p := m.palette
	muted := lipgloss.NewStyle().Foreground(p.Muted)
	title := lipgloss.NewStyle().Bold(true).Foreground(p.Accent)
	errStyle := lipgloss.NewStyle().Foreground(p.Error)

	var sections []string

	sections = append(sections, lipgloss.JoinHorizontal(
		lipgloss.Center,
		title.Render("wisp"),
		"  ",
		m.connectionView(),
		m.modeView(),
	))

	if m.snap.State == session.Idle && !m.showTranscript {
		sections = append(sections,
			lipgloss.NewStyle().Bold(true).Render("Voice to Text"),
			muted.Render("Press space to start recording. Speak clearly and press space again when done."),
		)
	}

	sections = append(sections, m.visualizerView())

	switch m.snap.State {
	case session.Recording:
		sections = append(sections, lipgloss.NewStyle().Foreground(p.Accent).Render("● Listening")+
			muted.Render(fmt.Sprintf("  %d chunks · %s", m.snap.Chunks, humanize.IBytes(uint64(m.snap.Bytes)))))
	case session.Processing:
		sections = append(sections, m.spinner.View()+" Processing audio...")
	}

	if m.showTranscript && m.snap.Transcript != "" {
		card := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Accent).
			Padding(0, 1).
			Width(min(max(m.width-4, 20), 76))
		heading := title.Render("Transcription")
		switch {
		case m.refining:
			heading += "  " + m.spinner.View() + muted.Render(" Refining...")
		case m.refined.Refined:
			heading = title.Render("Refined") + muted.Render(" · "+m.refined.Provider)
		}
		sections = append(sections, card.Render(heading+"\n"+m.transcriptText()))
	}

	if msg := m.errorMessage(); msg != "" {
		sections = append(sections, errStyle.Render("! "+msg))
	}
	if m.notice != "" {
		sections = append(sections, muted.Render(m.notice))
	}

	sections = append(sections, m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(strings.Join(sections, "\n\n"))
}

func (m Model) connectionView() string {
	if m.snap.Connected {
		return lipgloss.NewStyle().Foreground(m.palette.Connected).Render("●") + " Connected"
	}
	return lipgloss.NewStyle().Foreground(m.palette.Error).Render("●") + " Disconnected"
}

func (m Model) modeView() string {
	if m.opts.Refiner == nil {
		return ""
	}
	return lipgloss.NewStyle().Foreground(m.palette.Muted).Render("  · " + m.opts.Refiner.Mode().Title)
}

func (m Model) visualizerView() string {
	switch m.opts.Visualizer.Status() {
	case visualizer.StatusUnsupported:
		return lipgloss.NewStyle().Foreground(m.palette.Muted).Render("Audio visualization not supported")
	case visualizer.StatusDenied:
		return lipgloss.NewStyle().
			Foreground(m.palette.Error).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(m.palette.Error).
			Padding(0, 2).
			Render("⊘ Mic access denied")
	}
	if !m.focused {
		return m.canvas + "\n" + lipgloss.NewStyle().Foreground(m.palette.Muted).Render("paused")
	}
	return m.canvas
}

func (m Model) errorMessage() string {
	if m.snap.Err != nil {
		return m.snap.Error()
	}
	if m.actionErr != nil && !errors.Is(m.actionErr, session.ErrNotIdle) {
		return m.actionErr.Error()
	}
	return ""
}
