package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/critique"
	"github.com/sprite-ai/margin/internal/editor"
	"github.com/sprite-ai/margin/internal/lifecycle"
	"github.com/sprite-ai/margin/internal/model"
	"github.com/sprite-ai/margin/internal/track"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // local editor integrations connect from any origin
	},
}

// WebSocket message types from client.
const (
	wsMsgOpen    = "open"
	wsMsgEdit    = "edit"
	wsMsgApply   = "apply"
	wsMsgDismiss = "dismiss"
	wsMsgClear   = "clear"
	wsMsgUndo    = "undo"
	wsMsgRedo    = "redo"
	wsMsgAnalyze = "analyze"
	wsMsgCancel  = "cancel"
)

// WebSocket message types to client.
const (
	wsMsgState    = "state"
	wsMsgChunk    = "chunk"
	wsMsgAnalysis = "analysis"
	wsMsgError    = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsOpen is the payload for "open" messages.
type wsOpen struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// wsEdit is the payload for "edit" messages. Offsets are bytes in the
// document as it was before the edit.
type wsEdit struct {
	Changes []editor.Change `json:"changes"`
}

// wsTarget is the payload for apply and dismiss.
type wsTarget struct {
	ID string `json:"id"`
}

// wsAnalyze is the payload for "analyze" messages.
type wsAnalyze struct {
	Mode        string `json:"mode"`
	Instruction string `json:"instruction,omitempty"`
}

// wsState is sent after every change to the session.
type wsState struct {
	Path        string             `json:"path"`
	Content     string             `json:"content"`
	Decorations []decorationJSON   `json:"decorations"`
	Archive     []model.Annotation `json:"archive"`
	Pending     []string           `json:"pending"`
	Undo        int                `json:"undo"`
	Redo        int                `json:"redo"`
}

type decorationJSON struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	From       int    `json:"from"`
	To         int    `json:"to"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type wsChunk struct {
	Text string `json:"text"`
}

// wsAnalysisResponse is sent when a critique completes.
type wsAnalysisResponse struct {
	MessageID   string             `json:"message_id"`
	Mode        string             `json:"mode"`
	Annotations []model.Annotation `json:"annotations"`
	Dropped     int                `json:"dropped"`
}

// editSession is the state for one WebSocket connection: one engine over
// the document the client has open.
type editSession struct {
	srv    *Server
	conn   *websocket.Conn
	log    *slog.Logger
	engine *lifecycle.Engine
	critic *critique.Critic

	// docMu orders document switches against critique results so a
	// response is never recorded onto a document opened after it started.
	docMu      sync.Mutex
	generation uint64

	writeMu sync.Mutex
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	engine, err := lifecycle.New(s.opts.Store, lifecycle.Options{
		Clock:        s.opts.Clock,
		DismissDelay: s.opts.DismissDelay,
		Logger:       s.log,
	})
	if err != nil {
		s.log.Error("creating engine", "error", err)
		return
	}

	session := &editSession{
		srv:    s,
		conn:   conn,
		log:    s.log.With("remote", r.RemoteAddr),
		engine: engine,
	}
	if s.opts.Provider != nil {
		session.critic = critique.New(s.opts.Provider, critique.Options{
			Logger:  session.log,
			Current: engine.Content,
		})
	}

	// Auto-dismissals fire from timers; every other change is answered
	// directly by the handler that caused it.
	unsubscribe := engine.Subscribe(func(ev lifecycle.Event) {
		if ev.Kind == lifecycle.EventAutoDismissed {
			session.sendState()
		}
	})
	defer func() {
		unsubscribe()
		if session.critic != nil {
			session.critic.Cancel()
		}
		engine.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.log.Warn("websocket read", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			session.sendError("invalid message format")
			continue
		}
		session.handle(msg)
	}
}

func (s *editSession) handle(msg wsMessage) {
	switch msg.Type {
	case wsMsgOpen:
		var req wsOpen
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError("invalid open data")
			return
		}
		s.open(req.Path, req.Content)
		s.sendState()

	case wsMsgEdit:
		var req wsEdit
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError("invalid edit data")
			return
		}
		cs, err := editor.NewChangeSet(s.engine.Len(), req.Changes...)
		if err != nil {
			s.sendError("edit: " + err.Error())
			return
		}
		s.result(s.engine.Edit(cs))

	case wsMsgApply, wsMsgDismiss:
		var req wsTarget
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.ID == "" {
			s.sendError("invalid " + msg.Type + " data")
			return
		}
		if msg.Type == wsMsgApply {
			s.result(s.engine.Apply(req.ID))
		} else {
			s.result(s.engine.Dismiss(req.ID))
		}

	case wsMsgClear:
		_, err := s.engine.ClearAll()
		s.result(err)

	case wsMsgUndo:
		_, err := s.engine.Undo()
		s.result(err)

	case wsMsgRedo:
		_, err := s.engine.Redo()
		s.result(err)

	case wsMsgAnalyze:
		var req wsAnalyze
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError("invalid analyze data")
			return
		}
		s.analyze(req)

	case wsMsgCancel:
		if s.critic != nil {
			s.critic.Cancel()
		}

	default:
		s.sendError("unknown message type: " + msg.Type)
	}
}

func (s *editSession) result(err error) {
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.sendState()
}

// analyze streams a critique in the background. Chunks are forwarded as
// they arrive; annotations are added once the response is complete.
func (s *editSession) analyze(req wsAnalyze) {
	if s.critic == nil {
		s.sendError(ai.ErrNoProvider.Error())
		return
	}
	if !s.engine.IsOpen() {
		s.sendError(lifecycle.ErrNotOpen.Error())
		return
	}

	s.docMu.Lock()
	gen := s.generation
	path := s.engine.Path()
	request := ai.Request{Mode: req.Mode, Document: s.engine.Content(), Instruction: req.Instruction}
	s.docMu.Unlock()

	go func() {
		res, err := s.critic.RunRequest(context.Background(), request, func(chunk string) {
			s.send(wsMsgChunk, wsChunk{Text: chunk})
		})

		s.docMu.Lock()
		stale := s.generation != gen
		if !stale && res.Message.ID != "" {
			if rerr := critique.Record(s.engine, s.srv.opts.Store, res); rerr != nil {
				s.log.Warn("recording critique", "error", rerr)
			}
		}
		s.docMu.Unlock()
		if stale {
			s.log.Debug("discarding critique for replaced document", "path", path, "mode", res.Mode)
			return
		}
		if err != nil {
			if !errors.Is(err, critique.ErrCancelled) {
				s.sendError("analyze: " + err.Error())
			}
			return
		}

		anns := res.Annotations
		if anns == nil {
			anns = []model.Annotation{}
		}
		s.send(wsMsgAnalysis, wsAnalysisResponse{
			MessageID:   res.Message.ID,
			Mode:        res.Mode,
			Annotations: anns,
			Dropped:     res.Dropped,
		})
		s.sendState()
	}()
}

// open switches the session to a new document. Any critique still streaming
// belongs to the previous document and is cancelled.
func (s *editSession) open(path, content string) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.critic != nil {
		s.critic.Cancel()
	}
	s.generation++
	s.engine.Open(path, content)
}

func (s *editSession) state() wsState {
	st := wsState{
		Path:        s.engine.Path(),
		Content:     s.engine.Content(),
		Decorations: []decorationJSON{},
		Archive:     s.engine.Archive(),
		Pending:     []string{},
	}
	st.Undo, st.Redo = s.engine.History()
	for _, d := range s.engine.Decorations() {
		st.Decorations = append(st.Decorations, toDecorationJSON(d))
		if s.engine.Pending(d.ID) {
			st.Pending = append(st.Pending, d.ID)
		}
	}
	if st.Archive == nil {
		st.Archive = []model.Annotation{}
	}
	return st
}

func toDecorationJSON(d track.Decoration) decorationJSON {
	return decorationJSON{
		ID:         d.ID,
		Type:       d.Type.String(),
		From:       d.From,
		To:         d.To,
		Message:    d.Message,
		Suggestion: d.Suggestion,
	}
}

func (s *editSession) sendState() {
	s.send(wsMsgState, s.state())
}

func (s *editSession) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("ws marshal", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		s.log.Debug("ws write", "error", err)
	}
}

func (s *editSession) sendError(errMsg string) {
	s.send(wsMsgError, map[string]string{"message": errMsg})
}
