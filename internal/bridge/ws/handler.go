// Package ws streams events to websocket clients as tagged JSON text
// messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/internal/logging"
)

const writeWait = 5 * time.Second

type Config struct {
	// EventsPerSecond paces each stream. <= 0 sends as fast as the client
	// reads.
	EventsPerSecond float64
	Burst           int
	Logger          *log.Logger
	Factory         func(nexmark.Config) (*nexmark.EventGenerator, error)
}

// Handler upgrades each request and streams one generator per connection.
// The generator is configured from the query string: num_event_generators,
// max_events, offset, step and seed.
type Handler struct {
	cfg      Config
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg Config) *Handler {
	if cfg.Factory == nil {
		cfg.Factory = nexmark.New
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Handler{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger).WithPrefix("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 << 10,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := configFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gen, err := h.cfg.Factory(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drain(conn, cancel)

	sent, err := h.stream(ctx, conn, gen)
	switch {
	case err == nil:
		h.logger.Debug("stream exhausted", "remote", r.RemoteAddr, "sent", sent)
	case errors.Is(err, context.Canceled):
		h.logger.Debug("client went away", "remote", r.RemoteAddr, "sent", sent)
	default:
		h.logger.Warn("stream failed", "remote", r.RemoteAddr, "sent", sent, "err", err)
	}
}

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, gen *nexmark.EventGenerator) (int, error) {
	limiter := rate.NewLimiter(rate.Inf, h.cfg.Burst)
	if h.cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.Burst)
	}

	sent := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			return sent, err
		}
		ev, ok := gen.Next()
		if !ok {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream exhausted")
			return sent, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return sent, err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			return sent, fmt.Errorf("write event %d: %w", sent, err)
		}
		sent++
	}
}

// drain reads and discards client frames so control messages are processed,
// and cancels the stream once the client closes or the read fails.
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func configFromQuery(q url.Values) (nexmark.Config, error) {
	cfg := nexmark.DefaultConfig()
	if v := q.Get("num_event_generators"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nexmark.Config{}, fmt.Errorf("invalid num_event_generators %q", v)
		}
		cfg.NumEventGenerators = n
	}
	for _, p := range []struct {
		name string
		dst  *uint64
	}{
		{"max_events", &cfg.MaxEvents},
		{"offset", &cfg.Offset},
		{"step", &cfg.Step},
		{"seed", &cfg.Seed},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nexmark.Config{}, fmt.Errorf("invalid %s %q", p.name, v)
		}
		*p.dst = n
	}
	if cfg.Step == 0 {
		return nexmark.Config{}, fmt.Errorf("step must be > 0")
	}
	return cfg, nil
}
