package live

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dkoosis/testrig/pkg/render"
	"github.com/dkoosis/testrig/pkg/report"
)

type row struct {
	name    string
	running bool
	result  *report.TestResult
}

type suiteView struct {
	name     string
	expected int
	rows     []*row
	byName   map[string]*row
	finished bool
}

func (s *suiteView) row(name string) *row {
	if r, ok := s.byName[name]; ok {
		return r
	}
	r := &row{name: name}
	s.byName[name] = r
	s.rows = append(s.rows, r)
	return r
}

func (s *suiteView) count(status report.Status) int {
	n := 0
	for _, r := range s.rows {
		if r.result != nil && r.result.Status == status {
			n++
		}
	}
	return n
}

// Model is the bubbletea model of a run in progress. The suite being
// executed is expanded; finished suites collapse to one line unless they
// had failures.
type Model struct {
	events  <-chan Event
	theme   render.Theme
	spinner spinner.Model

	suites  []*suiteView
	byName  map[string]*suiteView
	counts  map[report.Status]int
	total   int
	current string

	width       int
	done        bool
	interrupted bool
}

type eventMsg Event
type eventsClosedMsg struct{}

// NewModel follows events until the channel is closed.
func NewModel(events <-chan Event, theme render.Theme) Model {
	return Model{
		events:  events,
		theme:   theme,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(theme.Accent)),
		byName:  make(map[string]*suiteView),
		counts:  make(map[report.Status]int),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick)
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = !m.done
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.apply(Event(msg))
		return m, m.listen()
	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) suite(name string) *suiteView {
	if s, ok := m.byName[name]; ok {
		return s
	}
	s := &suiteView{name: name, byName: make(map[string]*row)}
	m.byName[name] = s
	m.suites = append(m.suites, s)
	return s
}

func (m *Model) apply(ev Event) {
	switch ev.Kind {
	case SuiteStarted:
		s := m.suite(ev.Suite)
		s.expected = ev.Instances
		m.total += ev.Instances
		m.current = ev.Suite
	case TestStarted:
		m.suite(ev.Suite).row(ev.Test.Name).running = true
	case TestFinished:
		r := m.suite(ev.Suite).row(ev.Result.Name)
		res := ev.Result
		r.running = false
		r.result = &res
		m.counts[res.Status]++
	case SuiteFinished:
		m.suite(ev.Suite).finished = true
		if m.current == ev.Suite {
			m.current = ""
		}
	}
}

// Done reports whether the event stream has ended.
func (m Model) Done() bool { return m.done }

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool { return m.interrupted }

// Counts returns finished results by status.
func (m Model) Counts() map[report.Status]int { return m.counts }

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	for _, s := range m.suites {
		m.writeSuite(&b, s)
	}
	if !m.done {
		b.WriteString(m.theme.Muted.Render("q quit"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) header() string {
	finished := 0
	for _, n := range m.counts {
		finished += n
	}
	state := m.spinner.View() + " running"
	if m.done {
		state = m.theme.Mark(render.MarkPass) + " done"
		if m.counts[report.Failed]+m.counts[report.Errored] > 0 {
			state = m.theme.Mark(render.MarkFail) + " done"
		}
	}
	var counts []string
	for _, st := range []report.Status{report.Passed, report.Failed, report.Errored, report.Skipped} {
		mark := render.StatusMark(st)
		counts = append(counts, m.theme.Style(mark).Render(fmt.Sprintf("%s %d", m.theme.Icon(mark), m.counts[st])))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.Bold.Render("testrig"), "  ", state,
		fmt.Sprintf("  %d/%d  ", finished, m.total), strings.Join(counts, "  "))
}

func (m Model) writeSuite(b *strings.Builder, s *suiteView) {
	failed := s.count(report.Failed) + s.count(report.Errored)
	expanded := s.name == m.current || failed > 0
	icon := m.theme.Mark(render.MarkBullet)
	switch {
	case s.finished && failed > 0:
		icon = m.theme.Mark(render.MarkFail)
	case s.finished:
		icon = m.theme.Mark(render.MarkPass)
	}
	fmt.Fprintf(b, "%s %s", icon, m.theme.Bold.Render(s.name))
	if !expanded {
		b.WriteString(m.theme.Muted.Render(fmt.Sprintf("  %d passed", s.count(report.Passed))))
		if n := s.count(report.Skipped); n > 0 {
			b.WriteString(m.theme.Muted.Render(fmt.Sprintf(", %d skipped", n)))
		}
		b.WriteString("\n")
		return
	}
	b.WriteString("\n")
	for _, r := range s.rows {
		if s.name != m.current && r.result != nil && r.result.Status.OK() {
			continue
		}
		b.WriteString("  ")
		b.WriteString(m.rowLine(r))
		b.WriteString("\n")
	}
}

func (m Model) rowLine(r *row) string {
	if r.result == nil {
		if r.running {
			return m.spinner.View() + " " + m.fit(r.name, 4)
		}
		return m.theme.Muted.Render("· " + m.fit(r.name, 4))
	}
	icon := m.theme.Mark(render.StatusMark(r.result.Status))
	dur := formatDuration(r.result.Duration)
	line := icon + " " + m.fit(r.name, 6+len(dur)) + " " + m.theme.Muted.Render(dur)
	if r.result.Failure != nil && !r.result.Status.OK() {
		msg, _, _ := strings.Cut(r.result.Failure.Message, "\n")
		line += "\n    " + m.theme.Style(render.MarkFail).Render(m.fit(msg, 6))
	}
	return line
}

// fit truncates s to the terminal width less reserve columns.
func (m Model) fit(s string, reserve int) string {
	w := m.width - reserve
	if w < 10 {
		w = 10
	}
	return runewidth.Truncate(s, w, "…")
}

// RunProgram shows the view until the event stream closes or the user
// quits. Events are stopped on return so the run never blocks on a view that
// has gone away.
func RunProgram(ctx context.Context, events *Events, theme render.Theme, opts ...tea.ProgramOption) (Model, error) {
	defer events.Stop()
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewModel(events.C(), theme), opts...).Run()
	if m, ok := final.(Model); ok {
		return m, err
	}
	return Model{}, err
}
