package overlay

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/session"
	"github.com/redalert/redalert/internal/types"
)

// fakeAcknowledger holds alert number seq and counts successful acknowledgements
type fakeAcknowledger struct {
	seq    uint64
	clears int
}

func (f *fakeAcknowledger) Acknowledge(seq uint64) bool {
	if seq != f.seq {
		return false
	}
	f.clears++
	return true
}

type recordingOpener struct {
	opened []string
	err    error
}

func (r *recordingOpener) Open(url string) error {
	r.opened = append(r.opened, url)
	return r.err
}

func strPtr(s string) *string { return &s }

func TestActions(t *testing.T) {
	p := NewPresenter(&fakeAcknowledger{}, &recordingOpener{}, zerolog.Nop())

	tests := []struct {
		name           string
		alert          types.Alert
		join, calendar bool
	}{
		{"both links", types.Alert{URL: strPtr("https://x"), CalendarLink: strPtr("https://cal")}, true, true},
		{"no links", types.Alert{}, false, false},
		{"empty url", types.Alert{URL: strPtr(""), CalendarLink: strPtr("https://cal")}, false, true},
		{"url only", types.Alert{URL: strPtr("https://x")}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := p.Actions(tt.alert)
			if len(actions) != 3 {
				t.Fatalf("got %d actions", len(actions))
			}
			if actions[0].Kind != Primary || actions[0].Enabled != tt.join {
				t.Errorf("primary = %+v", actions[0])
			}
			if actions[1].Kind != Secondary || actions[1].Enabled != tt.calendar {
				t.Errorf("secondary = %+v", actions[1])
			}
			if actions[2].Kind != Dismiss || !actions[2].Enabled {
				t.Errorf("dismiss = %+v", actions[2])
			}
		})
	}
}

func TestJoinOpensThenClears(t *testing.T) {
	clr := &fakeAcknowledger{}
	op := &recordingOpener{}
	p := NewPresenter(clr, op, zerolog.Nop())

	if err := p.Join(types.Alert{URL: strPtr("https://meet/x")}, 0); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(op.opened) != 1 || op.opened[0] != "https://meet/x" {
		t.Fatalf("opened %v", op.opened)
	}
	if clr.clears != 1 {
		t.Fatalf("cleared %d times, want 1", clr.clears)
	}
}

func TestJoinClearsEvenIfOpenFails(t *testing.T) {
	clr := &fakeAcknowledger{}
	op := &recordingOpener{err: errors.New("no browser")}
	p := NewPresenter(clr, op, zerolog.Nop())

	err := p.Join(types.Alert{URL: strPtr("https://meet/x")}, 0)
	if err == nil {
		t.Fatal("expected opener error")
	}
	if clr.clears != 1 {
		t.Fatalf("cleared %d times, want 1", clr.clears)
	}
}

func TestUnavailableActions(t *testing.T) {
	clr := &fakeAcknowledger{}
	op := &recordingOpener{}
	p := NewPresenter(clr, op, zerolog.Nop())

	// title "T", url absent, calendarLink absent
	a := types.Alert{Title: "T", Date: "2024-01-01T10:00:00Z"}

	if err := p.Join(a, 0); !errors.Is(err, ErrActionUnavailable) {
		t.Fatalf("Join err = %v", err)
	}
	if err := p.OpenCalendar(a); !errors.Is(err, ErrActionUnavailable) {
		t.Fatalf("OpenCalendar err = %v", err)
	}
	if len(op.opened) != 0 || clr.clears != 0 {
		t.Fatalf("disabled actions had effects: opened %v, clears %d", op.opened, clr.clears)
	}

	if err := p.Dismiss(0); err != nil || clr.clears != 1 {
		t.Fatalf("Dismiss cleared %d times", clr.clears)
	}
}

func TestCalendarDoesNotDismiss(t *testing.T) {
	clr := &fakeAcknowledger{}
	op := &recordingOpener{}
	p := NewPresenter(clr, op, zerolog.Nop())

	if err := p.OpenCalendar(types.Alert{CalendarLink: strPtr("https://cal/ics")}); err != nil {
		t.Fatalf("OpenCalendar: %v", err)
	}
	if len(op.opened) != 1 || op.opened[0] != "https://cal/ics" {
		t.Fatalf("opened %v", op.opened)
	}
	if clr.clears != 0 {
		t.Fatal("calendar action must leave the alert on screen")
	}
}

func TestDo(t *testing.T) {
	clr := &fakeAcknowledger{}
	p := NewPresenter(clr, &recordingOpener{}, zerolog.Nop())

	if err := p.Do(Dismiss, types.Alert{}, 0); err != nil || clr.clears != 1 {
		t.Fatalf("Do(dismiss) = %v, clears %d", err, clr.clears)
	}
	if err := p.Do(Dismiss, types.Alert{}, 7); !errors.Is(err, ErrAlertReplaced) || clr.clears != 1 {
		t.Fatalf("Do(dismiss) on a replaced alert = %v, clears %d", err, clr.clears)
	}
	if err := p.Do("bogus", types.Alert{}, 0); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestAlertArrivingDuringJoinIsKept(t *testing.T) {
	sess := session.New(stubSource{}, nil, zerolog.Nop())
	t.Cleanup(sess.Close)

	a := types.Alert{Title: "A", Date: "2024-01-01T10:00:00Z", URL: strPtr("https://meet/a")}
	sess.Receive(a)
	snap := sess.Snapshot()

	// the browser takes a while; B lands before the join finishes
	p := NewPresenter(sess, OpenerFunc(func(string) error {
		sess.Receive(types.Alert{Title: "B", Date: "2024-01-01T10:05:00Z"})
		return nil
	}), zerolog.Nop())

	if err := p.Join(*snap.Alert, snap.Seq); err != nil {
		t.Fatalf("Join: %v", err)
	}
	got, ok := sess.Current()
	if !ok || got.Title != "B" {
		t.Fatalf("Current() = %q, %v; want B still held", got.Title, ok)
	}
}

func TestDismissOfReplacedAlertKeepsNewer(t *testing.T) {
	sess := session.New(stubSource{}, nil, zerolog.Nop())
	t.Cleanup(sess.Close)
	p := NewPresenter(sess, &recordingOpener{}, zerolog.Nop())

	sess.Receive(types.Alert{Title: "A", Date: "2024-01-01T10:00:00Z"})
	seen := sess.Snapshot()
	sess.Receive(types.Alert{Title: "B", Date: "2024-01-01T10:05:00Z"})

	if err := p.Do(Dismiss, *seen.Alert, seen.Seq); !errors.Is(err, ErrAlertReplaced) {
		t.Fatalf("Do(dismiss) = %v, want ErrAlertReplaced", err)
	}
	if got, ok := sess.Current(); !ok || got.Title != "B" {
		t.Fatalf("Current() = %q, %v; want B", got.Title, ok)
	}

	now := sess.Snapshot()
	if err := p.Do(Dismiss, *now.Alert, now.Seq); err != nil {
		t.Fatalf("Do(dismiss) = %v", err)
	}
	if _, ok := sess.Current(); ok {
		t.Fatal("B not dismissed")
	}
}

// stubSource is an idle transport for driving a real session
type stubSource struct{}

func (stubSource) State() types.ConnectionState { return types.Connected }

func (stubSource) OnStateChange(func(types.ConnectionState)) func() { return func() {} }

func (stubSource) OnAlert(func(types.Alert)) func() { return func() {} }

func (stubSource) Connect() {}

func (stubSource) Disconnect() {}
