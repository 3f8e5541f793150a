package realtime

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/alexandrevicenzi/go-sse"
)

// UpdatesChannel is the SSE channel live bracket viewers subscribe to.
const UpdatesChannel = "/events/updates"

// WinnerUpdate is the push payload broadcast the moment a winner is
// recorded, before the parent match is provisioned.
type WinnerUpdate struct {
	MatchID   string `json:"match_id"`
	NewWinner uint   `json:"new_winner"`
}

// Hub broadcasts tournament updates to connected viewers over SSE.
type Hub struct {
	server *sse.Server
}

func NewHub() *Hub {
	return &Hub{
		server: sse.NewServer(&sse.Options{
			Logger: log.New(log.Writer(), "go-sse: ", log.Ldate|log.Ltime),
		}),
	}
}

// Handler exposes the SSE endpoint for the router
func (h *Hub) Handler() http.Handler {
	return h.server
}

// NotifyNewWinner pushes a winner update to all live viewers. Best effort:
// a marshalling problem is logged and the advancement carries on.
func (h *Hub) NotifyNewWinner(matchID string, winnerID uint) {
	data, err := json.Marshal(WinnerUpdate{MatchID: matchID, NewWinner: winnerID})
	if err != nil {
		log.Printf("SSE: failed to marshal winner update: %v", err)
		return
	}
	h.server.SendMessage(UpdatesChannel, sse.SimpleMessage(string(data)))
}

// Shutdown closes all client connections
func (h *Hub) Shutdown() {
	h.server.Shutdown()
}
