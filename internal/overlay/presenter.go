// Package overlay presents the held alert and maps user actions onto the
// session. The same Presenter backs the terminal overlay and the local
// HTML page.
package overlay

import (
	"errors"
	"fmt"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/types"
)

var (
	// ErrActionUnavailable is returned when an action's link is missing
	ErrActionUnavailable = errors.New("action unavailable")
	// ErrAlertReplaced is returned when a newer alert took the slot
	// before the acted-on one was dismissed
	ErrAlertReplaced = errors.New("a newer alert is on screen")
)

// ActionKind names one of the overlay's buttons
type ActionKind string

const (
	Primary   ActionKind = "join"
	Secondary ActionKind = "calendar"
	Dismiss   ActionKind = "dismiss"
)

// Action is a button as rendered
type Action struct {
	Kind    ActionKind `json:"kind"`
	Label   string     `json:"label"`
	Enabled bool       `json:"enabled"`
}

// Acknowledger is the session operation actions need. It clears the
// alert numbered seq and reports false if that alert is no longer held.
type Acknowledger interface {
	Acknowledge(seq uint64) bool
}

// Opener opens a link in a new browsing context
type Opener interface {
	Open(url string) error
}

// BrowserOpener opens links in the user's default browser
type BrowserOpener struct{}

func (BrowserOpener) Open(url string) error {
	return browser.OpenURL(url)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

// Presenter carries out overlay actions
type Presenter struct {
	session Acknowledger
	opener  Opener
	logger  zerolog.Logger
}

// NewPresenter creates a Presenter. A nil opener defaults to the browser.
func NewPresenter(session Acknowledger, opener Opener, logger zerolog.Logger) *Presenter {
	if opener == nil {
		opener = BrowserOpener{}
	}
	return &Presenter{
		session: session,
		opener:  opener,
		logger:  logger.With().Str("component", "overlay").Logger(),
	}
}

// Actions lists the buttons for alert in display order
func (p *Presenter) Actions(alert types.Alert) []Action {
	return []Action{
		{Kind: Primary, Label: "Join now", Enabled: alert.HasURL()},
		{Kind: Secondary, Label: "Add to calendar", Enabled: alert.HasCalendarLink()},
		{Kind: Dismiss, Label: "Dismiss", Enabled: true},
	}
}

// Join opens the alert's URL and dismisses it. The alert is dismissed
// even if the browser could not be launched. seq is the alert's number
// from the session snapshot; an alert that arrived meanwhile stays.
func (p *Presenter) Join(alert types.Alert, seq uint64) error {
	if !alert.HasURL() {
		return fmt.Errorf("join: %w", ErrActionUnavailable)
	}
	err := p.open("join", *alert.URL)
	if !p.session.Acknowledge(seq) {
		p.logger.Info().Uint64("seq", seq).Msg("Newer alert arrived during join, keeping it")
	}
	return err
}

// OpenCalendar opens the calendar link. The alert stays on screen.
func (p *Presenter) OpenCalendar(alert types.Alert) error {
	if !alert.HasCalendarLink() {
		return fmt.Errorf("calendar: %w", ErrActionUnavailable)
	}
	return p.open("calendar", *alert.CalendarLink)
}

// Dismiss clears alert seq. It returns ErrAlertReplaced when a newer
// alert is held, which stays on screen.
func (p *Presenter) Dismiss(seq uint64) error {
	if !p.session.Acknowledge(seq) {
		return fmt.Errorf("dismiss: %w", ErrAlertReplaced)
	}
	return nil
}

// Do runs the action named by kind on alert seq
func (p *Presenter) Do(kind ActionKind, alert types.Alert, seq uint64) error {
	switch kind {
	case Primary:
		return p.Join(alert, seq)
	case Secondary:
		return p.OpenCalendar(alert)
	case Dismiss:
		return p.Dismiss(seq)
	default:
		return fmt.Errorf("unknown action %q", kind)
	}
}

func (p *Presenter) open(action, url string) error {
	if err := p.opener.Open(url); err != nil {
		p.logger.Warn().Err(err).Str("action", action).Str("url", url).Msg("Failed to open link")
		return fmt.Errorf("open %s link: %w", action, err)
	}
	p.logger.Info().Str("action", action).Str("url", url).Msg("Opened link")
	return nil
}
