package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/signflow/internal/interpreter"
	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/playback"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 5 * time.Second
	outboxSize     = 16
)

// Client → server message types.
const (
	msgTranscript = "transcript"
	msgClear      = "clear"
	msgReplay     = "replay"
	msgPlayAll    = "play_all"
	msgStop       = "stop"
)

type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type sessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type translationMessage struct {
	Type       string   `json:"type"`
	Generation uint64   `json:"generation"`
	Trigger    string   `json:"trigger"`
	Original   string   `json:"original"`
	Words      []string `json:"words"`
	Fallback   bool     `json:"fallback"`
	Reason     string   `json:"reason,omitempty"`
	Warning    string   `json:"warning,omitempty"`
	Filtered   []string `json:"filtered,omitempty"`
	Applied    bool     `json:"applied"`
}

type playbackMessage struct {
	Type       string `json:"type"`
	State      string `json:"state"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Word       string `json:"word,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// session is one WebSocket client driving its own interpreter and scheduler.
type session struct {
	id     string
	conn   *websocket.Conn
	srv    *Server
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	interp *interpreter.Interpreter

	outbox chan any
	kick   chan struct{}

	mu   sync.Mutex
	snap *playback.Snapshot
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(observe.WithSessionID(r.Context(), id))
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	ss := &session{
		id:     id,
		conn:   conn,
		srv:    s,
		log:    observe.Logger(ctx),
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan any, outboxSize),
		kick:   make(chan struct{}, 1),
	}
	if !s.addSession(ss) {
		cancel()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.removeSession(ss)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	sched := playback.New(
		playback.WithClock(s.clock),
		playback.WithDefaultDuration(s.defaultDuration),
		playback.WithObserver(ss.observe),
	)
	ss.interp = interpreter.New(ctx, s.rephraser, s.durations, sched,
		interpreter.WithPreloadTimeout(s.preloadTimeout),
		interpreter.WithTranslationHandler(ss.onTranslation),
		interpreter.WithMetrics(s.metrics),
	)

	ss.log.Info("session started", "remote", r.RemoteAddr)
	ss.run()
	ss.log.Info("session ended")
}

// run serves the session until the client goes away or the server closes.
func (ss *session) run() {
	// Cancelling the session closes the connection, which unblocks the
	// reader.
	closed := make(chan struct{})
	context.AfterFunc(ss.ctx, func() {
		defer close(closed)
		status := websocket.StatusNormalClosure
		if ss.srv.ctx.Err() != nil {
			status = websocket.StatusGoingAway
		}
		ss.conn.Close(status, "")
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ss.writeLoop()
	}()

	ss.send(sessionMessage{Type: "session", SessionID: ss.id})
	ss.readLoop()

	ss.cancel()
	<-closed
	ss.interp.Close()
	wg.Wait()
}

func (ss *session) readLoop() {
	for {
		_, data, err := ss.conn.Read(context.Background())
		if err != nil {
			if ss.ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				ss.log.Debug("websocket read failed", "err", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ss.send(errorMessage{Type: "error", Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case msgTranscript:
			ss.interp.OnTranscript(msg.Text)
		case msgClear:
			ss.interp.Clear()
		case msgReplay:
			ss.interp.Replay()
		case msgPlayAll:
			ss.interp.PlayAll()
		case msgStop:
			ss.interp.Stop()
		default:
			ss.send(errorMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// writeLoop is the only writer on the connection. Playback updates are
// coalesced so a slow client only sees the newest state.
func (ss *session) writeLoop() {
	for {
		select {
		case <-ss.ctx.Done():
			return
		case msg := <-ss.outbox:
			ss.write(msg)
		case <-ss.kick:
			ss.mu.Lock()
			snap := ss.snap
			ss.snap = nil
			ss.mu.Unlock()
			if snap != nil {
				ss.write(ss.playbackMessage(*snap))
			}
		}
	}
}

func (ss *session) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		ss.log.Error("marshal websocket message", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ss.ctx, wsWriteTimeout)
	defer cancel()
	if err := ss.conn.Write(ctx, websocket.MessageText, data); err != nil {
		if !errors.Is(err, context.Canceled) {
			ss.log.Debug("websocket write failed", "err", err)
		}
		ss.cancel()
	}
}

// send queues v for the writer. It gives up when the session ends.
func (ss *session) send(v any) {
	select {
	case ss.outbox <- v:
	case <-ss.ctx.Done():
	}
}

// observe runs under the scheduler lock and must not block.
func (ss *session) observe(snap playback.Snapshot) {
	ss.mu.Lock()
	ss.snap = &snap
	ss.mu.Unlock()
	select {
	case ss.kick <- struct{}{}:
	default:
	}
}

func (ss *session) onTranslation(t interpreter.Translation) {
	res := t.Result
	words := res.Words
	if words == nil {
		words = []string{}
	}
	ss.send(translationMessage{
		Type:       "translation",
		Generation: t.Generation,
		Trigger:    string(t.Trigger),
		Original:   res.Original,
		Words:      words,
		Fallback:   res.UsedFallback(),
		Reason:     string(res.Reason),
		Warning:    res.Warning,
		Filtered:   res.Filtered,
		Applied:    t.Applied,
	})
}

func (ss *session) playbackMessage(snap playback.Snapshot) playbackMessage {
	msg := playbackMessage{
		Type:  "playback",
		State: snap.State.String(),
		Index: snap.Index,
		Total: len(snap.Queue),
	}
	if snap.Word != "" {
		msg.Word = snap.Word
		msg.MediaURL, _ = ss.srv.signs.Store().MediaURL(snap.Word)
		msg.DurationMS = snap.Duration.Milliseconds()
	}
	return msg
}
