package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	orchestrator "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/agents/orchestrator"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
)

const (
	pongWait      = 70 * time.Second
	pingPeriod    = 25 * time.Second
	writeWait     = 10 * time.Second
	maxMessageLen = 16 << 10
	// maxAutoContinue bounds server-driven follow-up turns per user message.
	maxAutoContinue = 2
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Message string `json:"message"`
}

type wsReply struct {
	Type string `json:"type"`
	orchestrator.TurnResult
	Error string `json:"error,omitempty"`
}

// serveWS binds one connection to one session. The session id comes from the
// session_id query parameter or is minted. With auto_continue=false the
// client drives follow-up turns itself.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = s.newSessionID()
	}
	autoContinue := r.URL.Query().Get("auto_continue") != "false"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade websocket failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	conn.SetReadLimit(maxMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()
	defer close(stopPing)

	log.Debug().Str("session_id", sessionID).Msg("websocket opened")

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("session_id", sessionID).Msg("websocket closed")
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			if send(wsReply{Type: "error", Error: "invalid message"}) != nil {
				return
			}
			continue
		}

		text := msg.Message
		for i := 0; ; i++ {
			res, err := s.runTurn(r.Context(), sessionID, text)
			if err != nil {
				reply := wsReply{Type: "error", Error: err.Error()}
				reply.SessionID = sessionID
				if send(reply) != nil {
					return
				}
				break
			}
			if send(wsReply{Type: "turn", TurnResult: res}) != nil {
				return
			}
			if !autoContinue || !res.Directive.AutoContinue || i >= maxAutoContinue {
				break
			}
			text = dialoguex.ContinueUtterance
		}
	}
}
