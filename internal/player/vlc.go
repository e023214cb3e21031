package player

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// VLC drives a VLC process through its rc (remote control) interface
// over stdin/stdout. The rc protocol has no event push, so progress
// and end-of-media are derived by polling get_time/get_length.
type VLC struct {
	binary string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	stderr *bytes.Buffer
	events chan Event

	mu      sync.Mutex
	closed  bool
	loaded  bool
	stopped chan struct{}

	// queryMu spans a query's send plus its reply: rc replies carry no
	// tag, so a concurrent query would consume the wrong line
	queryMu sync.Mutex
}

// vlcPollInterval matches the cadence of mpv's time-pos observer
// closely enough for the progress tracker's sampling.
const vlcPollInterval = 500 * time.Millisecond

// NewVLC spawns a VLC process with the rc interface attached
func NewVLC(opts Options) (*VLC, error) {
	binary := opts.VLCBinary
	if binary == "" {
		binary = "vlc"
	}

	cmd := exec.Command(binary, "-I", "rc", "--no-color", "--play-and-pause")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open vlc stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open vlc stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start vlc: %w", err)
	}

	v := &VLC{
		binary:  binary,
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, 64),
		stderr:  stderr,
		events:  make(chan Event, 32),
		stopped: make(chan struct{}),
	}

	go v.readLoop(stdout)
	go v.pollLoop()

	return v, nil
}

// Name returns the backend identifier
func (v *VLC) Name() string { return "vlc" }

// Load starts playback of src at startPos seconds
func (v *VLC) Load(ctx context.Context, src Source, startPos float64) error {
	if err := v.send(fmt.Sprintf("add %s", src.URL)); err != nil {
		return err
	}
	if startPos > 0 {
		// rc accepts whole seconds only
		if err := v.send(fmt.Sprintf("seek %d", int(startPos))); err != nil {
			return err
		}
	}
	v.mu.Lock()
	v.loaded = true
	v.mu.Unlock()
	return nil
}

// SetPaused pauses or resumes playback.
// rc only exposes a toggle, so the current state is checked first.
func (v *VLC) SetPaused(paused bool) error {
	playing, err := v.queryInt("is_playing")
	if err != nil {
		return err
	}
	if (playing == 1) == paused {
		return v.send("pause")
	}
	return nil
}

// Seek moves playback to pos seconds (absolute)
func (v *VLC) Seek(ctx context.Context, pos float64) error {
	if pos < 0 {
		pos = 0
	}
	return v.send(fmt.Sprintf("seek %d", int(pos)))
}

// SetAudioTrack selects an audio track by id
func (v *VLC) SetAudioTrack(id int) error {
	return v.send(fmt.Sprintf("atrack %d", id))
}

// SetSubtitleTrack selects a subtitle track by id (0 disables)
func (v *VLC) SetSubtitleTrack(id int) error {
	if id == 0 {
		return v.send("strack -1")
	}
	return v.send(fmt.Sprintf("strack %d", id))
}

// Events returns the backend's event stream
func (v *VLC) Events() <-chan Event { return v.events }

// Stop quits VLC and tears down the pipes
func (v *VLC) Stop() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	close(v.stopped)
	v.mu.Unlock()

	_ = v.send("quit")
	_ = v.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- v.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = v.cmd.Process.Kill()
		<-done
	}
	return nil
}

func (v *VLC) send(cmdLine string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vlc connection closed")
	}
	if _, err := io.WriteString(v.stdin, cmdLine+"\n"); err != nil {
		return fmt.Errorf("vlc write failed: %w", err)
	}
	return nil
}

// queryInt sends a query command and waits for the next integer line.
// The poll loop and control commands issue queries concurrently, so
// queryMu serializes them; any line left over from a timed-out query
// is discarded before sending.
func (v *VLC) queryInt(cmdLine string) (int, error) {
	v.queryMu.Lock()
	defer v.queryMu.Unlock()

drain:
	for {
		select {
		case _, ok := <-v.lines:
			if !ok {
				return 0, fmt.Errorf("vlc closed")
			}
		default:
			break drain
		}
	}

	if err := v.send(cmdLine); err != nil {
		return 0, err
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-v.lines:
			if !ok {
				return 0, fmt.Errorf("vlc closed")
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				continue // prompt noise or status chatter
			}
			return n, nil
		case <-deadline:
			return 0, fmt.Errorf("vlc query timed out")
		case <-v.stopped:
			return 0, fmt.Errorf("vlc stopped")
		}
	}
}

// readLoop forwards raw stdout lines to the query path
func (v *VLC) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "> ")
		select {
		case v.lines <- line:
		default:
			// Drop chatter nobody is waiting for
		}
	}
	close(v.lines)
}

// pollLoop synthesizes progress and lifecycle events from rc queries
func (v *VLC) pollLoop() {
	defer close(v.events)

	ticker := time.NewTicker(vlcPollInterval)
	defer ticker.Stop()

	var (
		loadReported bool
		lastDuration float64
		endCandidate int
	)

	for {
		select {
		case <-v.stopped:
			return
		case <-ticker.C:
		}

		v.mu.Lock()
		loaded := v.loaded
		v.mu.Unlock()
		if !loaded {
			continue
		}

		if v.cmd.ProcessState != nil {
			v.emit(Event{Kind: EventError, Message: v.tailStderr()})
			return
		}

		length, err := v.queryInt("get_length")
		if err != nil {
			continue
		}
		pos, err := v.queryInt("get_time")
		if err != nil {
			continue
		}

		if length > 0 && !loadReported {
			loadReported = true
			lastDuration = float64(length)
			v.emit(Event{Kind: EventLoadComplete, Duration: lastDuration})
		}

		if loadReported {
			v.emit(Event{
				Kind:     EventProgress,
				Position: float64(pos),
				Duration: lastDuration,
			})
		}

		// --play-and-pause parks VLC on the final frame; treat a
		// sustained position at the very end as end-of-media.
		if loadReported && length > 0 && pos >= length-1 {
			endCandidate++
			if endCandidate >= 2 {
				v.emit(Event{Kind: EventEndOfMedia})
				return
			}
		} else {
			endCandidate = 0
		}
	}
}

func (v *VLC) tailStderr() string {
	out := strings.TrimSpace(v.stderr.String())
	if out == "" {
		return "vlc exited unexpectedly"
	}
	lines := strings.Split(out, "\n")
	return lines[len(lines)-1]
}

// emit delivers an event without blocking the poll loop
func (v *VLC) emit(ev Event) {
	select {
	case v.events <- ev:
	default:
	}
}
