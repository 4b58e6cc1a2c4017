package overlay

import (
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/redalert/redalert/internal/session"
	"github.com/redalert/redalert/internal/types"
)

// DateLayout is how alert dates are shown
const DateLayout = "02/01/2006 15:04"

// DisplayDate renders the alert's date in local time, falling back to
// the raw string when it does not parse
func DisplayDate(alert types.Alert) string {
	t, ok := alert.Time()
	if !ok {
		return alert.Date
	}
	return t.Local().Format(DateLayout)
}

// Session is what the terminal overlay needs from the alert session
type Session interface {
	Acknowledger
	Snapshot() session.Snapshot
	Subscribe(func(session.Snapshot)) func()
	Reconnect()
}

// Snapshots feeds session changes into a channel that only ever holds
// the latest one. The returned func stops the feed and closes the channel.
func Snapshots(sess Session) (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	cancel := sess.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- snap
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

type snapshotMsg session.Snapshot

// actionResultMsg reports a finished action so the footer can show it
type actionResultMsg struct {
	kind ActionKind
	err  error
}

type clearNoticeMsg struct{ seq int }

const noticeTimeout = 4 * time.Second

// Model is the bubbletea model for the terminal overlay
type Model struct {
	sess      Session
	presenter *Presenter
	events    <-chan session.Snapshot
	theme     Theme

	snap   session.Snapshot
	width  int
	height int

	notice    string
	noticeErr bool
	noticeSeq int
}

// NewModel creates the overlay model. events is usually the channel from
// Snapshots; nil disables live updates.
func NewModel(sess Session, presenter *Presenter, events <-chan session.Snapshot) Model {
	return Model{
		sess:      sess,
		presenter: presenter,
		events:    events,
		theme:     DefaultTheme(),
		snap:      sess.Snapshot(),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return listenForSnapshot(m.events)
}

func listenForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, listenForSnapshot(m.events)

	case actionResultMsg:
		return m.handleResult(msg)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.run("", func() error {
			m.sess.Reconnect()
			return nil
		})
	}

	alert := m.snap.Alert
	if alert == nil {
		return m, nil
	}
	a, seq := *alert, m.snap.Seq

	switch msg.String() {
	case "enter", "j":
		if !a.HasURL() {
			return m, nil
		}
		// optimistic: the session is cleared by Join regardless of outcome;
		// a newer alert arrives as its own snapshot
		m.snap.Alert = nil
		return m, m.run(Primary, func() error { return m.presenter.Join(a, seq) })
	case "c":
		if !a.HasCalendarLink() {
			return m, nil
		}
		return m, m.run(Secondary, func() error { return m.presenter.OpenCalendar(a) })
	case "esc", "d", "x":
		m.snap.Alert = nil
		return m, m.run(Dismiss, func() error { return m.presenter.Dismiss(seq) })
	}
	return m, nil
}

// run executes fn off the update loop since opening a browser can block
func (m Model) run(kind ActionKind, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{kind: kind, err: fn()}
	}
}

func (m Model) handleResult(msg actionResultMsg) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	switch {
	case errors.Is(msg.err, ErrAlertReplaced):
		m.notice, m.noticeErr = "A newer alert arrived", false
	case msg.err != nil:
		m.notice, m.noticeErr = msg.err.Error(), true
	case msg.kind == Primary:
		m.notice, m.noticeErr = "Opened meeting link", false
	case msg.kind == Secondary:
		m.notice, m.noticeErr = "Opened calendar link", false
	case msg.kind == "":
		m.notice, m.noticeErr = "Reconnecting", false
	default:
		m.notice = ""
		return m, nil
	}
	seq := m.noticeSeq
	return m, tea.Tick(noticeTimeout, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
}
