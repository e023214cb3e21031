package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/castaway-tv/castaway/internal/session"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 200 * time.Millisecond,
	}
}

// App is the remote-control surface for one playback session: arrow
// keys act as D-pad seek pulses, and the panels mirror the
// controller's status snapshot.
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView
	upnext     *tview.TextView

	config Config
	ctrl   *session.Controller
	title  string

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastStatus     string
	lastUpNext     string

	cancelFunc context.CancelFunc
}

// New creates a TUI bound to a playback controller
func New(ctrl *session.Controller, title string) *App {
	return NewWithConfig(ctrl, title, DefaultConfig())
}

// NewWithConfig creates a TUI with the given config
func NewWithConfig(ctrl *session.Controller, title string, cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		ctrl:   ctrl,
		title:  title,
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.status.SetBorder(true).
		SetTitle(" Status ").
		SetTitleAlign(tview.AlignLeft)

	a.upnext = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.upnext.SetBorder(true).
		SetTitle(" Up Next ").
		SetTitleAlign(tview.AlignLeft)

	help := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("←/→ seek   space pause   n play next   q quit")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 3, 0, false).
		AddItem(a.progress, 3, 0, false).
		AddItem(a.status, 3, 0, false).
		AddItem(a.upnext, 3, 0, false).
		AddItem(help, 1, 0, false)

	a.app.SetRoot(layout, true)
	a.app.SetInputCapture(a.handleKey)
}

// handleKey maps keyboard input onto the controller's remote surface
func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyLeft:
		a.ctrl.Pulse(session.SeekBackward)
		return nil
	case tcell.KeyRight:
		a.ctrl.Pulse(session.SeekForward)
		return nil
	case tcell.KeyEscape:
		a.quit()
		return nil
	}

	switch event.Rune() {
	case ' ':
		a.ctrl.TogglePause()
		return nil
	case 'n':
		a.ctrl.PlayNext()
		return nil
	case 'q':
		a.quit()
		return nil
	}
	return event
}

func (a *App) quit() {
	a.ctrl.Stop()
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// Run displays the TUI until the session ends or the user quits
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel
	defer cancel()

	go a.refreshLoop(ctx)

	return a.app.Run()
}

// Close stops the TUI from outside (e.g. when the session ends)
func (a *App) Close() {
	a.app.QueueUpdateDraw(func() {})
	a.app.Stop()
}

// refreshLoop re-renders the panels from the controller snapshot
func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.RefreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.render(a.ctrl.Snapshot())
		}
	}
}

// render updates only the panels whose content changed
func (a *App) render(st session.Status) {
	nowPlaying := fmt.Sprintf("[::b]%s[-:-:-]  (%s)", a.title, st.Backend)

	progress := renderBar(st.Position, st.Duration, 40)

	stateText := st.Phase.String()
	if st.Paused {
		stateText = "paused"
	}
	if st.Buffering {
		stateText = "buffering"
	}
	if st.Seeking {
		stateText = "seeking"
	}
	status := stateText
	if st.Message != "" {
		status = fmt.Sprintf("[red]%s[-]", st.Message)
	}

	upnext := ""
	switch st.UpNext {
	case session.UpNextActive:
		upnext = "[::b]Up next: press n to play[-:-:-]"
	case session.UpNextInactive:
		upnext = "[gray]Up next: press n to play[-]"
	}

	if nowPlaying == a.lastNowPlaying && progress == a.lastProgress &&
		status == a.lastStatus && upnext == a.lastUpNext {
		return
	}
	a.lastNowPlaying = nowPlaying
	a.lastProgress = progress
	a.lastStatus = status
	a.lastUpNext = upnext

	a.app.QueueUpdateDraw(func() {
		a.nowPlaying.SetText(nowPlaying)
		a.progress.SetText(progress)
		a.status.SetText(status)
		a.upnext.SetText(upnext)
	})
}

// renderBar draws a textual progress bar with timestamps
func renderBar(pos, dur float64, width int) string {
	ratio := 0.0
	if dur > 0 {
		ratio = pos / dur
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %s %s", formatClock(pos), bar, formatClock(dur))
}

func formatClock(secs float64) string {
	total := int(secs)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
