package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"scenewire/internal/domain"
)

// Message types on /ws.
const (
	TypeCall   = "call"
	TypeResult = "result"
	TypeTools  = "tools"
	TypeError  = "error"
)

// WSMessage is the JSON message protocol for the WebSocket gateway.
//
//	-> {"type":"call","id":"c1","name":"createPropsCrate","arguments":{...}}
//	<- {"type":"result","id":"c1","result":{"callId":"c1","ok":true,...}}
//	-> {"type":"tools"}
//	<- {"type":"tools","tools":[...]}
type WSMessage struct {
	Type      string                  `json:"type"`
	ID        string                  `json:"id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Arguments json.RawMessage         `json:"arguments,omitempty"`
	Result    *domain.ToolReply       `json:"result,omitempty"`
	Tools     []domain.ToolDefinition `json:"tools,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Default upgrader for WebSocket connections.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS upgrades the request and runs a read loop. Calls are executed in
// arrival order on this connection; the host serializes across connections.
// Only GET is accepted for the WebSocket handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.log().Debug("ws connected", "remote", r.RemoteAddr)

	var writeMu sync.Mutex
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			s.write(conn, &writeMu, &WSMessage{Type: TypeError, Error: "invalid JSON"})
			continue
		}
		switch in.Type {
		case TypeCall:
			if in.Name == "" {
				s.write(conn, &writeMu, &WSMessage{Type: TypeError, ID: in.ID, Error: "call without tool name"})
				continue
			}
			reply := s.host.Call(r.Context(), domain.ToolCall{ID: in.ID, Name: in.Name, Arguments: in.Arguments})
			s.write(conn, &writeMu, &WSMessage{Type: TypeResult, ID: in.ID, Result: &reply})
		case TypeTools:
			tools := s.host.Tools()
			if tools == nil {
				tools = []domain.ToolDefinition{}
			}
			s.write(conn, &writeMu, &WSMessage{Type: TypeTools, ID: in.ID, Tools: tools})
		default:
			s.write(conn, &writeMu, &WSMessage{Type: TypeError, ID: in.ID, Error: "unsupported message type " + strconv.Quote(in.Type)})
		}
	}
	s.log().Debug("ws disconnected", "remote", r.RemoteAddr)
}

func (s *Server) write(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) {
	data, err := marshal(msg)
	if err != nil {
		s.log().Error("encode ws message", "type", msg.Type, "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log().Debug("ws write failed", "error", err)
	}
}
