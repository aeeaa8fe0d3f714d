package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/streamagent/query"
)

const wsWriteWait = 10 * time.Second

// streamFunc runs one engine stream until ctx ends or emit fails.
type streamFunc func(ctx context.Context, emit query.Emit) error

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if !s.cfg.EnableCORS {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range s.cfg.CORSOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// stream serves run as a websocket when the request asks for an upgrade,
// and as multipart/x-mixed-replace otherwise.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, run streamFunc) {
	if websocket.IsWebSocketUpgrade(r) {
		s.streamWebsocket(w, r, run)
		return
	}
	s.streamMultipart(w, r, run)
}

func (s *Server) streamMultipart(w http.ResponseWriter, r *http.Request, run streamFunc) {
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	rc := http.NewResponseController(w)
	started := false

	emit := func(snap *query.Snapshot) error {
		data, err := json.Marshal(renderSnapshot(snap))
		if err != nil {
			return err
		}
		if !started {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+boundary)
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writePart(w, boundary, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	err := run(r.Context(), emit)
	if err == nil || r.Context().Err() != nil {
		s.logger.Debug("Multipart stream closed", "path", r.URL.Path)
		return
	}
	if !started {
		s.writeError(w, err)
		return
	}

	s.logger.Debug("Multipart stream ended with error", "path", r.URL.Path, "error", err)
	if data, merr := json.Marshal(s.errorDocument(err)); merr == nil {
		if werr := writePart(w, boundary, data); werr == nil {
			_ = rc.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, boundary string, data []byte) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-type: application/json\r\nContent-length: %d\r\n\r\n%s\r\n",
		boundary, len(data), data)
	return err
}

func (s *Server) streamWebsocket(w http.ResponseWriter, r *http.Request, run streamFunc) {
	conn, err := s.newUpgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only watches for the client going away; control frames are
	// answered by the library.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emit := func(snap *query.Snapshot) error {
		data, err := json.Marshal(renderSnapshot(snap))
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	err = run(ctx, emit)
	closeCode := websocket.CloseNormalClosure
	if err != nil && ctx.Err() == nil {
		s.logger.Debug("WebSocket stream ended with error", "path", r.URL.Path, "error", err)
		if data, merr := json.Marshal(s.errorDocument(err)); merr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		closeCode = websocket.CloseInternalServerErr
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""), time.Now().Add(time.Second))
}
