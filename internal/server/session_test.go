package server_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type wsMessage struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id"`
	Trigger    string   `json:"trigger"`
	Words      []string `json:"words"`
	Fallback   bool     `json:"fallback"`
	Applied    bool     `json:"applied"`
	State      string   `json:"state"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Word       string   `json:"word"`
	MediaURL   string   `json:"media_url"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error"`
}

func dialSession(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	hello := readMessage(t, conn)
	if hello.Type != "session" || hello.SessionID == "" {
		t.Fatalf("first message: got %+v, want a session greeting", hello)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func sendMessage(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads messages until match returns true or the budget runs out.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	for range 20 {
		msg := readMessage(t, conn)
		if match(msg) {
			return msg
		}
	}
	t.Fatal("expected message never arrived")
	return wsMessage{}
}

func TestSession_TranscriptPlays(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	conn := dialSession(t, f)

	sendMessage(t, conn, map[string]string{"type": "transcript", "text": "hello world"})

	var translation, playing *wsMessage
	for translation == nil || playing == nil {
		msg := readUntil(t, conn, func(m wsMessage) bool {
			return m.Type == "translation" || (m.Type == "playback" && m.State == "playing")
		})
		switch msg.Type {
		case "translation":
			translation = &msg
		case "playback":
			if playing == nil {
				playing = &msg
			}
		}
	}

	if strings.Join(translation.Words, " ") != "HELLO WORLD" {
		t.Errorf("translation words: got %v", translation.Words)
	}
	if !translation.Fallback || !translation.Applied || translation.Trigger != "transcript" {
		t.Errorf("translation: got %+v", *translation)
	}
	if playing.Word != "HELLO" || playing.Index != 0 || playing.Total != 2 {
		t.Errorf("playback: got %+v, want HELLO 0/2", *playing)
	}
	if playing.MediaURL != "https://cdn.test/signs/hello.gif" {
		t.Errorf("media_url: got %q", playing.MediaURL)
	}
	if playing.DurationMS != 2000 {
		t.Errorf("duration_ms: got %d, want 2000", playing.DurationMS)
	}
}

func TestSession_StopGoesIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	conn := dialSession(t, f)

	sendMessage(t, conn, map[string]string{"type": "transcript", "text": "hello"})
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == "playback" && m.State == "playing" })

	sendMessage(t, conn, map[string]string{"type": "stop"})
	idle := readUntil(t, conn, func(m wsMessage) bool { return m.Type == "playback" && m.State == "idle" })
	if idle.Total != 1 {
		t.Errorf("stop should keep the queue, got total %d", idle.Total)
	}
}

func TestSession_PlayAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	conn := dialSession(t, f)

	sendMessage(t, conn, map[string]string{"type": "transcript", "text": "hello"})
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == "translation" })

	sendMessage(t, conn, map[string]string{"type": "transcript", "text": "hello world"})
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == "translation" })

	sendMessage(t, conn, map[string]string{"type": "play_all"})
	msg := readUntil(t, conn, func(m wsMessage) bool { return m.Type == "translation" && m.Trigger == "play_all" })
	if strings.Join(msg.Words, " ") != "HELLO WORLD" {
		t.Errorf("play_all words: got %v, want the whole transcript", msg.Words)
	}
}

func TestSession_UnknownMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	conn := dialSession(t, f)

	sendMessage(t, conn, map[string]string{"type": "dance"})
	msg := readMessage(t, conn)
	if msg.Type != "error" || !strings.Contains(msg.Error, "dance") {
		t.Errorf("got %+v, want an error naming the type", msg)
	}

	if err := conn.Write(context.Background(), websocket.MessageText, []byte("{oops")); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "error" || msg.Error != "invalid message" {
		t.Errorf("got %+v, want invalid message error", msg)
	}
}

func TestSession_ServerCloseEndsSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	conn := dialSession(t, f)

	if got := f.srv.Sessions(); got != 1 {
		t.Fatalf("Sessions: got %d, want 1", got)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.srv.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status: got %v (err %v), want StatusGoingAway", got, err)
	}

	<-done
	if got := f.srv.Sessions(); got != 0 {
		t.Errorf("Sessions after Close: got %d, want 0", got)
	}
}
