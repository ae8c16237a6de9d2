package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kindlecal/internal/agenda"
	"kindlecal/internal/battery"
	"kindlecal/internal/config"
	appLog "kindlecal/internal/log"
	"kindlecal/internal/render"
)

const (
	eventsCacheTTL  = 30 * time.Second
	eventsCacheSize = 8
	batteryCacheTTL = 30 * time.Second
)

// Renderer is what the HTTP surface needs from the rendering pipeline.
type Renderer interface {
	RenderAs(ctx context.Context, now time.Time, trigger string) ([]byte, error)
	Entries(ctx context.Context, now time.Time) []agenda.Entry
	Location() *time.Location
}

// Server provides the image endpoint for the device plus a few JSON and
// diagnostics endpoints.
type Server struct {
	cfg      *config.Config
	renderer Renderer
	battery  battery.Reader
	mux      *http.ServeMux
	now      func() time.Time

	// /api/events responses keyed by display date.
	eventsCache *expirable.LRU[string, eventsResponse]

	// In-memory cache for battery status so I2C is not hit on every call.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, renderer Renderer, br battery.Reader) *Server {
	s := &Server{
		cfg:         cfg,
		renderer:    renderer,
		battery:     br,
		mux:         http.NewServeMux(),
		now:         time.Now,
		eventsCache: expirable.NewLRU[string, eventsResponse](eventsCacheSize, nil, eventsCacheTTL),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.accessKeyEnabled() {
		return s.accessKeyMiddleware(h)
	}
	return h
}

func (s *Server) accessKeyEnabled() bool {
	return s.cfg != nil && s.cfg.AccessKey != ""
}

// accessKeyMiddleware requires ?key= on every path except /health.
func (s *Server) accessKeyMiddleware(next http.Handler) http.Handler {
	key := s.cfg.AccessKey

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !secureCompare(r.URL.Query().Get("key"), key) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String(), "access_key", s.accessKeyEnabled())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /image", s.handleImage)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleImage renders today's agenda on demand. This is what the device
// polls.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.renderer.RenderAs(r.Context(), s.now(), render.TriggerHTTP)
	if err != nil {
		appLog.Error("image render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="image.png"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handlePreview serves the last scheduled render from disk. http.ServeFile
// maps a missing file to 404.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.OutputPath)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Date            string     `json:"date"`
	DisplayTimeZone string     `json:"display_timezone"`
	Entries         []entryDTO `json:"entries"`
}

// entryDTO is a JSON-friendly view of an agenda entry.
type entryDTO struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	AllDay           bool       `json:"all_day"`
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
	StartLabel       string     `json:"start_label,omitempty"`
	EndLabel         string     `json:"end_label,omitempty"`
	TitleShort       string     `json:"title_short"`
	DescriptionShort string     `json:"description_short,omitempty"`
}

func toDTO(e agenda.Entry) entryDTO {
	dto := entryDTO{
		Title:            e.Title(),
		Description:      e.Description(),
		AllDay:           e.IsAllDay(),
		StartLabel:       e.StartLabel(),
		EndLabel:         e.EndLabel(),
		TitleShort:       e.TitleShort(),
		DescriptionShort: e.DescriptionShort(),
	}
	if t, ok := e.Start(); ok {
		dto.Start = &t
	}
	if t, ok := e.End(); ok {
		dto.End = &t
	}
	return dto
}

// handleEvents returns today's resolved agenda. Responses are cached per
// display date for eventsCacheTTL.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.renderer.Location()
	now := s.now().In(loc)
	date := now.Format(time.DateOnly)

	if resp, ok := s.eventsCache.Get(date); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	entries := s.renderer.Entries(r.Context(), now)
	dtos := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toDTO(e))
	}
	resp := eventsResponse{
		Date:            date,
		DisplayTimeZone: loc.String(),
		Entries:         dtos,
	}
	appLog.Debug("api events resolved", "date", date, "entries", len(dtos))

	s.eventsCache.Add(date, resp)
	writeJSON(w, http.StatusOK, resp)
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Time    time.Time       `json:"time"`
	Battery *battery.Status `json:"battery"`
}

// handleStatus exposes host battery status. A host without a controller
// reports "battery": null.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := statusResponse{Time: now.In(s.renderer.Location())}

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		st := bc.status
		resp.Battery = &st
		writeJSON(w, http.StatusOK, resp)
		return
	}

	status, err := s.battery.Read(r.Context())
	switch {
	case errors.Is(err, battery.ErrUnavailable):
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: status, updatedAt: now}
	s.batteryMu.Unlock()

	resp.Battery = &status
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
