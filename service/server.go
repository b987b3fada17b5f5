package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebServer provides HTTP endpoints for health checking and the latest
// schedule, plus a websocket feed that receives every fresh schedule.
type WebServer struct {
	service   *DispatchService
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// StatusResponse represents the health check response.
type StatusResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Service   ServiceHealth `json:"service"`
	System    SystemHealth  `json:"system"`
}

// ServiceHealth represents service-specific health information.
type ServiceHealth struct {
	IsRunning     bool       `json:"is_running"`
	HasSchedule   bool       `json:"has_schedule"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	EntitiesFile  string     `json:"entities_file"`
	Timesteps     int        `json:"timesteps"`
	SolveInterval string     `json:"solve_interval"`
}

// SystemHealth represents system-level health information.
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// NewWebServer creates a new web server. A non-positive port disables it.
func NewWebServer(service *DispatchService, port int) *WebServer {
	if port <= 0 {
		return nil // Web server disabled
	}

	mux := http.NewServeMux()
	ws := &WebServer{
		service:   service,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", ws.healthHandler)
	mux.HandleFunc("/api/ready", ws.readinessHandler)
	mux.HandleFunc("/api/schedule", ws.scheduleHandler)
	mux.HandleFunc("/api/ws", ws.wsHandler)

	return ws
}

// Start starts the web server.
func (ws *WebServer) Start() error {
	if ws == nil {
		return nil // Web server disabled
	}

	go ws.handleBroadcasts()

	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.service.logger.Printf("Web server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws == nil {
		return nil // Web server disabled
	}

	close(ws.done)

	ws.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close() //nolint:gosec
		}
		return true
	})

	return ws.server.Shutdown(ctx)
}

// BroadcastSchedule pushes a fresh schedule to all connected clients.
func (ws *WebServer) BroadcastSchedule(schedule *Schedule) {
	if ws == nil {
		return
	}

	message, err := json.Marshal(schedule)
	if err != nil {
		ws.service.logger.Printf("Failed to marshal schedule for broadcast: %v", err)
		return
	}

	select {
	case ws.broadcast <- message:
	default:
		ws.service.logger.Printf("Broadcast channel full, dropping schedule update")
	}
}

// healthHandler handles the /api/health endpoint.
func (ws *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	config := ws.service.GetConfig()
	latest := ws.service.LatestSchedule()

	response := StatusResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Service: ServiceHealth{
			IsRunning:     ws.service.IsRunning(),
			HasSchedule:   latest != nil,
			EntitiesFile:  config.EntitiesFile,
			Timesteps:     config.Timesteps,
			SolveInterval: config.SolveInterval.String(),
		},
		System: SystemHealth{
			Uptime: formatUptime(time.Since(ws.startTime)),
		},
	}
	if latest != nil {
		response.Service.LastRunAt = &latest.RunAt
	}

	if !ws.service.IsRunning() {
		response.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// readinessHandler handles the /api/ready endpoint.
func (ws *WebServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	running := ws.service.IsRunning()
	ready := map[string]any{
		"ready":     running,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")

	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(ready); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// scheduleHandler handles the /api/schedule endpoint.
func (ws *WebServer) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	latest := ws.service.LatestSchedule()
	if latest == nil {
		http.Error(w, "No schedule available yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(latest); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// wsHandler handles websocket connections.
func (ws *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.service.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	ws.clients.Store(conn, true)
	ws.service.logger.Printf("New WebSocket client connected. Total clients: %d", ws.clientCount())

	// Send the latest schedule immediately, if any.
	if latest := ws.service.LatestSchedule(); latest != nil {
		if err := conn.WriteJSON(latest); err != nil {
			ws.service.logger.Printf("Failed to send initial schedule: %v", err)
		}
	}

	defer func() {
		ws.clients.Delete(conn)
		conn.Close() //nolint:gosec
		ws.service.logger.Printf("WebSocket client disconnected. Total clients: %d", ws.clientCount())
	}()

	// Read messages from client (ping/pong, close).
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.service.logger.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// handleBroadcasts sends messages to all connected clients.
func (ws *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-ws.broadcast:
			ws.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}

				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					ws.service.logger.Printf("WebSocket write error: %v", err)
					conn.Close() //nolint:gosec
					ws.clients.Delete(conn)
				}
				return true
			})
		case <-ws.done:
			return
		}
	}
}

func (ws *WebServer) clientCount() int {
	count := 0
	ws.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// formatUptime renders a duration as a compact human-readable string.
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
