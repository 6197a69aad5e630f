// Package httpapi is the session-bootstrapping HTTP/WS surface: login,
// config, world listing/creation, and the gameplay websocket. The
// websocket plumbing (gameConn, websock) lives in conn.go.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"cellarena/account"
	"cellarena/gameconfig"
	"cellarena/protocol"
	"cellarena/session"
	"cellarena/stats"
	"cellarena/worldstate"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the account store, token store, connection hub, world
// manager, config service, and stats service into the HTTP surface.
type Server struct {
	Addr string

	Store   account.Store
	Tokens  *session.TokenStore
	Conns   *session.ConnectionHub
	Manager *worldstate.Manager
	Config  *gameconfig.Service
	Stats   *stats.Service

	router *mux.Router
}

// NewServer builds the router and registers every route.
func NewServer(addr string, store account.Store, tokens *session.TokenStore, conns *session.ConnectionHub, manager *worldstate.Manager, cfgSvc *gameconfig.Service, statsSvc *stats.Service) *Server {
	s := &Server{
		Addr:    addr,
		Store:   store,
		Tokens:  tokens,
		Conns:   conns,
		Manager: manager,
		Config:  cfgSvc,
		Stats:   statsSvc,
	}

	manager.RegisterEventListener(s.handleWorldEvent)

	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/worlds", s.handleListWorlds).Methods(http.MethodGet)
	r.HandleFunc("/worlds", s.handleCreateWorld).Methods(http.MethodPost)
	r.HandleFunc("/ws/world/{world_id}", s.handleWorldSocket)
	r.HandleFunc("/worlds/{world_id}/debug", s.handleWorldDebug).Methods(http.MethodGet)
	r.HandleFunc("/admin/events", s.handleAdminEvents)
	s.router = r
	return s
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.Addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("httpapi: serve: %w", err)
		}
		return nil
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	user, err := s.Store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token := s.Tokens.Issue(user.Username, user.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.LoadGameplayConfig(r.Context())
	if err != nil {
		http.Error(w, "config unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) authenticateQuery(r *http.Request) (session.Binding, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return session.Binding{}, false
	}
	return s.Tokens.Validate(token)
}

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticateQuery(r); !ok {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.Manager.ListWorlds())
}

type createWorldRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticateQuery(r); !ok {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	var req createWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	id := s.Manager.CreateWorld(context.Background(), req.Name)
	writeJSON(w, http.StatusOK, struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{ID: id, Name: req.Name})
}

type worldDebugResponse struct {
	TickRateHz float64 `json:"tick_rate_hz"`
}

// handleWorldDebug exposes a world's live tick rate, read off the runner's
// lock-free gauge without going through its command queue.
func (s *Server) handleWorldDebug(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticateQuery(r); !ok {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	worldID := mux.Vars(r)["world_id"]
	hz, ok := s.Manager.TickRateHz(worldID)
	if !ok {
		http.Error(w, fmt.Sprintf("world %s not found", worldID), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, worldDebugResponse{TickRateHz: hz})
}

type adminEventFrame struct {
	WorldID    string `json:"world_id"`
	Type       string `json:"type"`
	WinnerID   string `json:"winner_id,omitempty"`
	WinnerName string `json:"winner_name,omitempty"`
	LoserID    string `json:"loser_id,omitempty"`
	LoserName  string `json:"loser_name,omitempty"`
}

// handleAdminEvents streams every world's domain events, merged into one
// feed by Manager.AdminEvents, to a single authenticated observer
// connection.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticateQuery(r); !ok {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: admin events upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ctx := r.Context()
	for event := range s.Manager.AdminEvents(ctx.Done()) {
		_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
		frame := adminEventFrame{
			WorldID:    event.WorldID,
			Type:       event.Event.Type,
			WinnerID:   event.Event.WinnerID,
			WinnerName: event.Event.WinnerName,
			LoserID:    event.Event.LoserID,
			LoserName:  event.Event.LoserName,
		}
		if err := ws.WriteJSON(frame); err != nil {
			return
		}
	}
}

// handleWorldEvent is the world manager's event listener: on elimination it
// notifies and closes the losing player's connection and credits the
// winner's stats delta.
func (s *Server) handleWorldEvent(worldID string, event worldstate.Event) {
	if event.Type != "player_eliminated" {
		return
	}

	s.Conns.SendTo(worldID, event.LoserID, protocol.NewEliminated(event.WinnerName, worldID))
	s.Conns.Close(worldID, event.LoserID, protocol.CloseEliminated, "Eliminated")

	if s.Stats != nil && event.WinnerName != "" {
		if err := s.Stats.AddProgress(context.Background(), event.WinnerName, account.Counters{CellsEaten: 1}); err != nil {
			log.Printf("httpapi: stats update for %s dropped: %v", event.WinnerName, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWorldSocket implements the full per-connection lifecycle: token
// auth, join, subscribe, the gameConn read/ping/publish loops, and final
// stats delta plus manager teardown on disconnect.
func (s *Server) handleWorldSocket(w http.ResponseWriter, r *http.Request) {
	binding, ok := s.authenticateQuery(r)
	if !ok {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		newWebsock(ws).Close(protocol.CloseInvalidToken, "invalid or missing token")
		return
	}

	worldID := mux.Vars(r)["world_id"]
	playerName := r.URL.Query().Get("player_name")
	if playerName == "" {
		playerName = binding.Username
	}
	token := r.URL.Query().Get("token")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: upgrade failed: %v", err)
		return
	}
	sock := newWebsock(ws)

	player := worldstate.NewPlayer(binding.UserID+":"+worldID, playerName, token)
	cell := s.Manager.AddPlayer(worldID, player)
	if cell == nil {
		_ = sock.Write(r.Context(), func(ws *websocket.Conn) error {
			return ws.WriteJSON(protocol.NewError(fmt.Sprintf("world %s not found", worldID)))
		})
		sock.Close(websocket.CloseNormalClosure, "world not found")
		return
	}

	sub := s.Manager.Subscribe(worldID)
	s.Conns.Register(worldID, player.ID, sock)
	defer func() {
		sub.Close()
		s.Conns.Unregister(worldID, player.ID)
		counters, ok := s.Manager.RemovePlayer(worldID, player.ID)
		if ok && s.Stats != nil {
			delta := account.Counters{FoodEaten: counters.FoodEaten, CellsEaten: counters.CellsEaten}
			if err := s.Stats.AddProgress(context.Background(), binding.Username, delta); err != nil {
				log.Printf("httpapi: final stats update for %s dropped: %v", binding.Username, err)
			}
		}
		ws.Close()
	}()

	if s.Stats != nil {
		if err := s.Stats.AddProgress(r.Context(), binding.Username, account.Counters{SessionsPlayed: 1, WorldsExplored: 1}); err != nil {
			log.Printf("httpapi: stats update for %s dropped: %v", binding.Username, err)
		}
	}

	cfg, _ := s.Manager.ConfigSnapshot(worldID)
	_ = sock.Write(r.Context(), func(ws *websocket.Conn) error {
		return ws.WriteJSON(protocol.NewJoined(player.Public(), cell.Public(), cfg))
	})

	conn := &gameConn{
		sock:      sock,
		rootCtx:   r.Context(),
		manager:   s.Manager,
		worldID:   worldID,
		playerID:  player.ID,
		snapshots: sub.C,
	}
	if err := conn.Sync(); err != nil && !isExpectedDisconnect(err) {
		log.Printf("httpapi: connection for player %s in world %s ended: %v", player.ID, worldID, err)
	}
}

func isExpectedDisconnect(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		err == ErrPongDeadlineExceeded
}
