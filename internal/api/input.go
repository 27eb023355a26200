package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/sim"
)

const (
	inputReadLimit  = 4096
	inputPongWait   = 60 * time.Second
	inputPingPeriod = inputPongWait * 9 / 10
	inputWriteWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The route sits behind bearer auth, so any origin holding a token may
	// drive the session.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inputAck answers every message on the input feed.
type inputAck struct {
	Kind   sim.CommandKind `json:"kind,omitempty"`
	Queued bool            `json:"queued"`
	Error  string          `json:"error,omitempty"`
}

// inputHandler upgrades to a websocket and queues each JSON command it
// receives on the session. A full queue drops the command and says so in
// the ack; the session never blocks on a client.
func inputHandler(logger *slog.Logger, s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logger.Debug("input upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		log := logger.With("remote_ip", r.RemoteAddr)
		log.Info("input client connected")

		conn.SetReadLimit(inputReadLimit)
		conn.SetReadDeadline(time.Now().Add(inputPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(inputPongWait))
		})

		done := make(chan struct{})
		defer close(done)
		go pingInput(conn, done)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("input client read failed", "error", err)
				} else {
					log.Info("input client disconnected")
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(inputPongWait))

			ack := handleInput(s, data)
			conn.SetWriteDeadline(time.Now().Add(inputWriteWait))
			if err := conn.WriteJSON(ack); err != nil {
				log.Warn("input ack failed", "error", err)
				return
			}
		}
	}
}

// handleInput decodes, validates, and queues one command.
func handleInput(s Simulation, data []byte) inputAck {
	var cmd sim.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		metrics.IncInputMessages("invalid")
		return inputAck{Error: "malformed command: " + err.Error()}
	}
	if err := cmd.Validate(); err != nil {
		metrics.IncInputMessages("invalid")
		return inputAck{Kind: cmd.Kind, Error: err.Error()}
	}
	if !s.Submit(cmd) {
		metrics.IncInputMessages("dropped")
		return inputAck{Kind: cmd.Kind, Error: errQueueFull.Error()}
	}
	metrics.IncInputMessages("queued")
	return inputAck{Kind: cmd.Kind, Queued: true}
}

var errQueueFull = errors.New("input queue full, command dropped")

func pingInput(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(inputPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(inputWriteWait)); err != nil {
				return
			}
		}
	}
}
