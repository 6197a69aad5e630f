package session

import "sync"

// Sink is anything the connection hub can push a message to and close.
// httpapi's websocket connection wrapper implements this; tests use a fake.
type Sink interface {
	Send(message any) error
	Close(code int, reason string) error
}

// ConnectionHub tracks world_id -> player_id -> open sink. A send failure
// to an individual sink unregisters it rather than propagating the error
// to the caller.
type ConnectionHub struct {
	mu    sync.RWMutex
	byWorld map[string]map[string]Sink
}

// NewConnectionHub returns an empty hub.
func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{byWorld: map[string]map[string]Sink{}}
}

// Register adds a sink for world_id/player_id, replacing any previous one.
func (h *ConnectionHub) Register(worldID, playerID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	players, ok := h.byWorld[worldID]
	if !ok {
		players = map[string]Sink{}
		h.byWorld[worldID] = players
	}
	players[playerID] = sink
}

// Unregister removes a sink, if present.
func (h *ConnectionHub) Unregister(worldID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	players, ok := h.byWorld[worldID]
	if !ok {
		return
	}
	delete(players, playerID)
	if len(players) == 0 {
		delete(h.byWorld, worldID)
	}
}

// SendTo pushes message to a single player's sink. On failure the sink is
// unregistered.
func (h *ConnectionHub) SendTo(worldID, playerID string, message any) {
	h.mu.RLock()
	sink, ok := h.byWorld[worldID][playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := sink.Send(message); err != nil {
		h.Unregister(worldID, playerID)
	}
}

// Close closes a single player's connection with the given code/reason and
// unregisters it.
func (h *ConnectionHub) Close(worldID, playerID string, code int, reason string) {
	h.mu.RLock()
	sink, ok := h.byWorld[worldID][playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = sink.Close(code, reason)
	h.Unregister(worldID, playerID)
}

// Broadcast sends message to every connection in a single world.
func (h *ConnectionHub) Broadcast(worldID string, message any) {
	h.mu.RLock()
	players := make(map[string]Sink, len(h.byWorld[worldID]))
	for id, sink := range h.byWorld[worldID] {
		players[id] = sink
	}
	h.mu.RUnlock()

	for playerID, sink := range players {
		if err := sink.Send(message); err != nil {
			h.Unregister(worldID, playerID)
		}
	}
}

// BroadcastGlobal sends message to every connection across every world.
func (h *ConnectionHub) BroadcastGlobal(message any) {
	h.mu.RLock()
	snapshot := make(map[string]map[string]Sink, len(h.byWorld))
	for worldID, players := range h.byWorld {
		copyPlayers := make(map[string]Sink, len(players))
		for id, sink := range players {
			copyPlayers[id] = sink
		}
		snapshot[worldID] = copyPlayers
	}
	h.mu.RUnlock()

	for worldID, players := range snapshot {
		for playerID, sink := range players {
			if err := sink.Send(message); err != nil {
				h.Unregister(worldID, playerID)
			}
		}
	}
}
