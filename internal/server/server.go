// Package server provides the Singlet preview server: an HTTP server that
// renders registered components headlessly, exposes a JSON render API, and
// pushes live-reload notifications over WebSocket when component sources
// change on disk.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/singlet-dev/singlet/internal/config"
	"github.com/singlet-dev/singlet/internal/logging"
	"github.com/singlet-dev/singlet/internal/runtime"
	"github.com/singlet-dev/singlet/internal/watcher"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client represents one connected live-reload WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// UpdateMessage is pushed to live-reload clients.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PreviewServer serves registered components with live reload.
type PreviewServer struct {
	config       *config.Config
	registry     *runtime.Registry
	watcher      *watcher.SourceWatcher
	log          logging.Logger
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	shutdownOnce sync.Once
}

// New creates a preview server around an existing registry.
func New(cfg *config.Config, reg *runtime.Registry, log logging.Logger) (*PreviewServer, error) {
	if log == nil {
		log = logging.Nop()
	}
	sw, err := watcher.New(300*time.Millisecond, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &PreviewServer{
		config:     cfg,
		registry:   reg,
		watcher:    sw,
		log:        log,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
	}, nil
}

// Start runs the server until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/component/", s.handleComponent)
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/components", s.handleList)
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.serverMutex.Unlock()

	go s.runHub(ctx)

	if s.config.Development.HotReload {
		s.watcher.AddFilter(watcher.ComponentSourceFilter)
		s.watcher.AddHandler(s.handleSourceChanges)
		for _, dir := range s.config.Components.ScanPaths {
			if err := s.watcher.AddRecursive(dir); err != nil {
				s.log.Warn(ctx, err, "cannot watch directory", "path", dir)
			}
		}
		s.watcher.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "preview server listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown stops the HTTP server, the watcher, and every client.
func (s *PreviewServer) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.clientsMutex.Lock()
		for conn := range s.clients {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		if werr := s.watcher.Stop(); werr != nil {
			err = werr
		}
		s.serverMutex.RLock()
		srv := s.httpServer
		s.serverMutex.RUnlock()
		if srv != nil {
			if herr := srv.Shutdown(ctx); herr != nil {
				err = herr
			}
		}
	})
	return err
}

// handleSourceChanges invalidates cached sources for changed files and
// notifies live-reload clients. Currently-registered definitions keep their
// old template until re-registration; connected browsers reload and the
// next registration pass picks up the new source.
func (s *PreviewServer) handleSourceChanges(events []watcher.ChangeEvent) error {
	ctx := context.Background()
	for _, ev := range events {
		s.registry.Cache().Invalidate(ev.Path)
		s.log.Info(ctx, "source changed", "path", ev.Path, "type", ev.Type.String())
	}
	msg, err := json.Marshal(UpdateMessage{Type: "full_reload", Timestamp: time.Now()})
	if err != nil {
		return err
	}
	select {
	case s.broadcast <- msg:
	default:
	}
	return nil
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage(s.config, s.componentNames()))
}

func (s *PreviewServer) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.componentNames()); err != nil {
		s.log.Warn(r.Context(), err, "encoding component list")
	}
}

func (s *PreviewServer) componentNames() []string {
	return s.registry.Names()
}

// handleComponent renders one component into a preview page. Host
// attributes come from query parameters, so /component/my-counter?count=5
// seeds initial state.
func (s *PreviewServer) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/component/"):]
	if name == "" || !s.registry.IsRegistered(name) {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}
	attrs := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			attrs[key] = vals[0]
		}
	}
	inst, err := s.registry.NewInstanceWithAttrs(name, attrs)
	if err != nil {
		s.log.Error(r.Context(), err, "component render failed", "name", name)
		http.Error(w, "component render failed", http.StatusInternalServerError)
		return
	}
	defer inst.Disconnect()

	rendered, err := inst.HTML()
	if err != nil {
		s.log.Error(r.Context(), err, "component serialization failed", "name", name)
		http.Error(w, "component render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, previewPage(name, rendered, s.config.Development.HotReload))
}

// renderRequest is the /api/render request body.
type renderRequest struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type renderResponse struct {
	Name  string `json:"name"`
	HTML  string `json:"html"`
	Error string `json:"error,omitempty"`
}

func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req renderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !s.registry.IsRegistered(req.Name) {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}
	inst, err := s.registry.NewInstanceWithAttrs(req.Name, req.Attributes)
	resp := renderResponse{Name: req.Name}
	if err != nil {
		resp.Error = err.Error()
	} else {
		if rendered, serr := inst.HTML(); serr != nil {
			resp.Error = serr.Error()
		} else {
			resp.HTML = rendered
		}
		inst.Disconnect()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn(r.Context(), err, "encoding render response")
	}
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 256), server: s}
	go client.writePump()
	go client.readPump()
	s.register <- client
}

// checkOrigin allows same-host origins plus any configured allowed origin.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}
	expected := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	if originURL.Host == expected || originURL.Host == s.config.Server.Host {
		return true
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if originURL.Host == allowed || origin == allowed {
			return true
		}
	}
	return false
}

func (s *PreviewServer) runHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			s.clientsMutex.Unlock()
		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
			}
			s.clientsMutex.Unlock()
		case msg := <-s.broadcast:
			s.clientsMutex.RLock()
			for _, client := range s.clients {
				select {
				case client.send <- msg:
				default:
				}
			}
			s.clientsMutex.RUnlock()
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c.conn
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
