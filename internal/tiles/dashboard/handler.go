package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	tilesync "github.com/mschirtzinger/tileboard/internal/tiles/sync"
)

// Handler turns controller snapshots into dashboard messages.
// It bridges between the sync controller and the WebSocket server.
type Handler struct {
	server *Server
	logger *log.Logger

	mu        sync.Mutex
	lastError string
	sent      int
}

// NewHandler creates a handler that broadcasts through server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnSnapshot broadcasts snap to every viewer. A newly raised error is also
// sent as its own error message so clients can show it once.
func (h *Handler) OnSnapshot(snap tilesync.Snapshot) {
	msg, err := snapshotMessage(snap)
	if err != nil {
		h.logger.Printf("Failed to marshal snapshot: %v", err)
		return
	}
	h.server.Broadcast(msg)

	h.mu.Lock()
	h.sent++
	raised := snap.Error != "" && snap.Error != h.lastError
	h.lastError = snap.Error
	h.mu.Unlock()

	if raised {
		data, err := json.Marshal(ErrorData{Message: snap.Error})
		if err != nil {
			h.logger.Printf("Failed to marshal error: %v", err)
			return
		}
		h.server.Broadcast(Message{
			Type:      MessageTypeError,
			Timestamp: time.Now(),
			Data:      data,
		})
	}
}

// Sent returns how many snapshots have been broadcast.
func (h *Handler) Sent() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent
}

func snapshotMessage(snap tilesync.Snapshot) (Message, error) {
	data, err := json.Marshal(SnapshotData{
		Tiles:       snap.Tiles,
		LastUpdated: snap.LastUpdated,
		State:       snap.State,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      MessageTypeSnapshot,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}
