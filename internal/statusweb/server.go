package statusweb

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/crawlerd/internal/launcher"
	"golang.org/x/time/rate"
)

// Server wires the read-only status view and its live websocket push
// on top of a launcher Pool. It is the HTTP collaborator named in
// spec §6; it exposes only in-memory queries on the pool, never
// mutating it.
type Server struct {
	pool     *launcher.Pool
	nodeName string
	logsDir  string
	itemsDir string

	logger   arbor.ILogger
	upgrader websocket.Upgrader
	throttle float64
}

// NewServer returns a Server backed by pool. throttlePerSec bounds how
// many push events per second a single websocket client receives.
func NewServer(logger arbor.ILogger, pool *launcher.Pool, nodeName, logsDir, itemsDir string, throttlePerSec float64) *Server {
	return &Server{
		pool:     pool,
		nodeName: nodeName,
		logsDir:  logsDir,
		itemsDir: itemsDir,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		throttle: throttlePerSec,
	}
}

// Routes registers the status-view URLs named in spec §6 onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.Handler)
	mux.HandleFunc("/jobs", s.Handler)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/logs/", http.StripPrefix("/logs/", http.FileServer(http.Dir(s.logsDir))))
	mux.Handle("/items/", http.StripPrefix("/items/", http.FileServer(http.Dir(s.itemsDir))))
}

// rateLimiter builds a per-connection limiter honouring the configured
// throttle, falling back to unlimited when throttlePerSec <= 0.
func (s *Server) rateLimiter() *rate.Limiter {
	if s.throttle <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(s.throttle), 1)
}
