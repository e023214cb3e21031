package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

// MPV drives an mpv process over its JSON IPC socket.
//
// The process is spawned idle and media is loaded with "loadfile".
// Property observers translate mpv's event stream into the uniform
// Event kinds the controller consumes.
type MPV struct {
	binary     string
	socketPath string

	cmd    *exec.Cmd
	conn   net.Conn
	events chan Event

	mu        sync.Mutex
	nextReqID int64
	pending   map[int64]chan mpvResponse
	duration  float64
	closed    bool
}

type mpvCommand struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id"`
}

type mpvResponse struct {
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"` // Set when the line is an event, not a reply
}

// Property observer ids; mpv echoes these back in property-change events
const (
	obsTimePos = 1 + iota
	obsDuration
	obsPausedForCache
	obsTrackList
	obsVideoParams
)

// NewMPV spawns an idle mpv process and connects to its IPC socket
func NewMPV(opts Options) (*MPV, error) {
	binary := opts.MPVBinary
	if binary == "" {
		binary = "mpv"
	}
	socketPath := opts.MPVSocket
	if socketPath == "" {
		socketPath = fmt.Sprintf("%s/castaway-mpv-%d.sock", os.TempDir(), os.Getpid())
	}

	cmd := exec.Command(binary,
		"--idle=yes",
		"--no-terminal",
		"--force-window=yes",
		"--keep-open=no",
		fmt.Sprintf("--input-ipc-server=%s", socketPath),
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	conn, err := dialWithRetry(socketPath, 5*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("failed to connect to mpv socket: %w", err)
	}

	m := &MPV{
		binary:     binary,
		socketPath: socketPath,
		cmd:        cmd,
		conn:       conn,
		events:     make(chan Event, 32),
		pending:    make(map[int64]chan mpvResponse),
	}

	go m.readLoop()

	if err := m.observeProperties(); err != nil {
		_ = m.Stop()
		return nil, err
	}

	return m, nil
}

// dialWithRetry polls the socket until mpv creates it or the deadline passes
func dialWithRetry(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (m *MPV) observeProperties() error {
	observers := []struct {
		id   int64
		prop string
	}{
		{obsTimePos, "time-pos"},
		{obsDuration, "duration"},
		{obsPausedForCache, "paused-for-cache"},
		{obsTrackList, "track-list"},
		{obsVideoParams, "video-params"},
	}
	for _, o := range observers {
		if _, err := m.request("observe_property", o.id, o.prop); err != nil {
			return fmt.Errorf("failed to observe %s: %w", o.prop, err)
		}
	}
	return nil
}

// Name returns the backend identifier
func (m *MPV) Name() string { return "mpv" }

// Load starts playback of src at startPos seconds
func (m *MPV) Load(ctx context.Context, src Source, startPos float64) error {
	opts := fmt.Sprintf("start=%f", startPos)
	if src.Title != "" {
		opts += fmt.Sprintf(",force-media-title=%%%d%%%s", len(src.Title), src.Title)
	}
	if _, err := m.request("loadfile", src.URL, "replace", opts); err != nil {
		return fmt.Errorf("loadfile failed: %w", err)
	}
	if src.Subtitle != "" {
		if _, err := m.request("sub-add", src.Subtitle, "auto"); err != nil {
			// Subtitles are best-effort; playback continues without them
			return nil
		}
	}
	return nil
}

// SetPaused pauses or resumes playback
func (m *MPV) SetPaused(paused bool) error {
	_, err := m.request("set_property", "pause", paused)
	return err
}

// Seek moves playback to pos seconds (absolute)
func (m *MPV) Seek(ctx context.Context, pos float64) error {
	_, err := m.request("seek", pos, "absolute")
	if err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	return nil
}

// SetAudioTrack selects an audio track by id
func (m *MPV) SetAudioTrack(id int) error {
	_, err := m.request("set_property", "aid", id)
	return err
}

// SetSubtitleTrack selects a subtitle track by id (0 disables)
func (m *MPV) SetSubtitleTrack(id int) error {
	if id == 0 {
		_, err := m.request("set_property", "sid", "no")
		return err
	}
	_, err := m.request("set_property", "sid", id)
	return err
}

// Events returns the backend's event stream
func (m *MPV) Events() <-chan Event { return m.events }

// Stop quits mpv and tears down the IPC connection
func (m *MPV) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	_, _ = m.request("quit")
	_ = m.conn.Close()

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = m.cmd.Process.Kill()
		<-done
	}
	_ = os.Remove(m.socketPath)
	return nil
}

// request sends one command and waits for its matching reply
func (m *MPV) request(args ...interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mpv connection closed")
	}
	m.nextReqID++
	id := m.nextReqID
	ch := make(chan mpvResponse, 1)
	m.pending[id] = ch

	payload, err := json.Marshal(mpvCommand{Command: args, RequestID: id})
	if err != nil {
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, err
	}
	_, err = m.conn.Write(append(payload, '\n'))
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mpv write failed: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return nil, fmt.Errorf("mpv: %s", resp.Error)
		}
		return resp.Data, nil
	case <-time.After(5 * time.Second):
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("mpv request timed out")
	}
}

// readLoop decodes IPC lines into replies and controller events
func (m *MPV) readLoop() {
	defer close(m.events)

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var resp mpvResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}

		if resp.Event == "" {
			m.mu.Lock()
			ch, ok := m.pending[resp.RequestID]
			if ok {
				delete(m.pending, resp.RequestID)
			}
			m.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		m.handleEvent(scanner.Bytes(), resp)
	}
}

// mpvPropertyChange is the shape of property-change event lines
type mpvPropertyChange struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// mpvEndFile is the shape of end-file event lines
type mpvEndFile struct {
	Reason   string `json:"reason"`
	FileErr  string `json:"file_error"`
	Playlist int    `json:"playlist_entry_id"`
}

func (m *MPV) handleEvent(raw []byte, resp mpvResponse) {
	switch resp.Event {
	case "file-loaded":
		m.mu.Lock()
		dur := m.duration
		m.mu.Unlock()
		m.emit(Event{Kind: EventLoadComplete, Duration: dur})

	case "end-file":
		var ef struct {
			Event string `json:"event"`
			mpvEndFile
		}
		if err := json.Unmarshal(raw, &ef); err != nil {
			return
		}
		switch ef.Reason {
		case "eof":
			m.emit(Event{Kind: EventEndOfMedia})
		case "error":
			msg := ef.FileErr
			if msg == "" {
				msg = "playback terminated with an error"
			}
			m.emit(Event{Kind: EventError, Message: msg})
		}

	case "property-change":
		var pc struct {
			Event string `json:"event"`
			mpvPropertyChange
		}
		if err := json.Unmarshal(raw, &pc); err != nil {
			return
		}
		m.handlePropertyChange(pc.mpvPropertyChange)
	}
}

func (m *MPV) handlePropertyChange(pc mpvPropertyChange) {
	switch pc.ID {
	case obsTimePos:
		var pos float64
		if err := json.Unmarshal(pc.Data, &pos); err != nil {
			return
		}
		m.mu.Lock()
		dur := m.duration
		m.mu.Unlock()
		m.emit(Event{Kind: EventProgress, Position: pos, Duration: dur})

	case obsDuration:
		var dur float64
		if err := json.Unmarshal(pc.Data, &dur); err != nil {
			return
		}
		m.mu.Lock()
		m.duration = dur
		m.mu.Unlock()

	case obsPausedForCache:
		var buffering bool
		if err := json.Unmarshal(pc.Data, &buffering); err != nil {
			return
		}
		m.emit(Event{Kind: EventBuffering, Buffering: buffering})

	case obsTrackList:
		var list []struct {
			ID       int    `json:"id"`
			Type     string `json:"type"`
			Lang     string `json:"lang"`
			Title    string `json:"title"`
			Selected bool   `json:"selected"`
		}
		if err := json.Unmarshal(pc.Data, &list); err != nil {
			return
		}
		tracks := make([]Track, 0, len(list))
		for _, t := range list {
			if t.Type != "audio" && t.Type != "sub" {
				continue
			}
			tracks = append(tracks, Track{
				ID:       t.ID,
				Type:     t.Type,
				Language: t.Lang,
				Title:    t.Title,
				Selected: t.Selected,
			})
		}
		m.emit(Event{Kind: EventTracksChanged, Tracks: tracks})
	}
}

// emit delivers an event without blocking the read loop.
// If the consumer has fallen far behind, the oldest event is dropped.
func (m *MPV) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		select {
		case <-m.events:
		default:
		}
		select {
		case m.events <- ev:
		default:
		}
	}
}
