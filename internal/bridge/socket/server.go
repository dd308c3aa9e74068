package socket

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
	"github.com/fabricekabongo/nexmark/internal/logging"
)

type Config struct {
	Network, Address, UnixSocketPath, AuthToken string
	MaxInflight, GlobalQueueLimit               int
	TLSConfig                                   *tls.Config
	Logger                                      *log.Logger
}

// Factory builds the cursor behind an Open request.
type Factory func(nexmark.Config) (*nexmark.EventGenerator, error)

// Server bridges EventGenerators to framed protobuf clients. Each connection
// owns at most one generator. All requests of a connection are handled by
// the same partition worker, so its generator is never pulled concurrently.
type Server struct {
	cfg     Config
	factory Factory
	logger  *log.Logger
	ln      net.Listener
	addr    atomic.Value
	globalQ chan struct{}
	partQ   []chan queuedRequest
	live    sync.Map
	conns   atomic.Int64
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
}

type queuedRequest struct {
	req     *SocketRequest
	conn    *connection
	release func()
}

// connection responses flow through two queues. replies carries worker
// results and never fills up: a request holds one inflight slot from
// admission until the writer dequeues its reply. errs carries responses
// built by the reader, which blocks when the client stops reading.
type connection struct {
	id        string
	partition int
	c         net.Conn
	replies   chan *SocketResponse
	errs      chan *SocketResponse
	inflight  chan struct{}
	gone      chan struct{}
	closeOnce sync.Once

	// owned by the partition worker
	gen *nexmark.EventGenerator
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.gone)
		_ = c.c.Close()
	})
}

func NewServer(cfg Config, factory Factory) *Server {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 64
	}
	if cfg.GlobalQueueLimit <= 0 {
		cfg.GlobalQueueLimit = 4096
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if factory == nil {
		factory = nexmark.New
	}
	s := &Server{
		cfg:     cfg,
		factory: factory,
		logger:  logging.OrDefault(cfg.Logger).WithPrefix("socket"),
		globalQ: make(chan struct{}, cfg.GlobalQueueLimit),
		partQ:   make([]chan queuedRequest, hashroute.PartitionCount),
		done:    make(chan struct{}),
	}
	for i := range s.partQ {
		s.partQ[i] = make(chan queuedRequest, 128)
	}
	return s
}

func (s *Server) Addr() string {
	if v := s.addr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Address
	if s.cfg.Network == "unix" {
		addr = s.cfg.UnixSocketPath
		if err := os.Remove(addr); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(s.cfg.Network, addr)
	if err != nil {
		return err
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.ln = ln
	s.addr.Store(ln.Addr().String())
	s.logger.Info("listening", "network", s.cfg.Network, "addr", ln.Addr().String())

	for i := range s.partQ {
		s.wg.Add(1)
		go s.runPartitionWorker(s.partQ[i])
	}
	go func() { <-ctx.Done(); _ = s.Close() }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.live.Range(func(_, v any) bool {
		_ = v.(net.Conn).Close()
		return true
	})
	s.wg.Wait()
	return nil
}

func (s *Server) handleConn(raw net.Conn) {
	id := uuid.NewString()
	conn := &connection{
		id:        id,
		partition: hashroute.PartitionForKey(id),
		c:         raw,
		replies:   make(chan *SocketResponse, s.cfg.MaxInflight),
		errs:      make(chan *SocketResponse, 64),
		inflight:  make(chan struct{}, s.cfg.MaxInflight),
		gone:      make(chan struct{}),
	}
	s.live.Store(id, raw)
	s.conns.Add(1)
	s.logger.Debug("connection opened", "conn", id, "remote", raw.RemoteAddr())
	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.writeLoop(conn) }()
	go func() {
		defer s.wg.Done()
		defer s.conns.Add(-1)
		defer s.live.Delete(id)
		defer conn.close()
		s.readLoop(conn)
		s.drain(conn)
		s.logger.Debug("connection closed", "conn", id)
	}()
}

// writeLoop exits on a write error, on a nil response from drain, or when
// the connection is gone.
func (s *Server) writeLoop(conn *connection) {
	defer conn.close()
	w := bufio.NewWriter(conn.c)
	for {
		var res *SocketResponse
		select {
		case res = <-conn.replies:
			<-conn.inflight
		case res = <-conn.errs:
			if res == nil {
				return
			}
		case <-conn.gone:
			return
		}
		payload, err := MarshalMessage(res)
		if err != nil {
			s.logger.Warn("marshal response", "conn", conn.id, "err", err)
			continue
		}
		if err := WriteFrame(w, payload); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// drain waits until every admitted request has been answered, then lets the
// writer flush and stop.
func (s *Server) drain(conn *connection) {
	for range cap(conn.inflight) {
		select {
		case conn.inflight <- struct{}{}:
		case <-conn.gone:
			return
		case <-s.done:
			return
		}
	}
	select {
	case conn.errs <- nil:
	case <-conn.gone:
		return
	}
	<-conn.gone
}

func (s *Server) readLoop(conn *connection) {
	r := bufio.NewReader(conn.c)
	for {
		payload, err := ReadFrame(r)
		if err != nil {
			return
		}
		req, err := UnmarshalRequest(payload)
		if err != nil {
			if !s.reject(conn, &SocketResponse{ErrorCode: int32(ErrorCodeBadRequest), ErrorMessage: err.Error()}) {
				return
			}
			continue
		}
		if err := ValidateRequest(req); err != nil {
			if !s.reject(conn, fail(req, ErrorCodeBadRequest, err.Error())) {
				return
			}
			continue
		}
		if s.cfg.AuthToken != "" && req.AuthToken != s.cfg.AuthToken {
			if !s.reject(conn, fail(req, ErrorCodeUnauthenticated, "invalid auth token")) {
				return
			}
			continue
		}

		select {
		case conn.inflight <- struct{}{}:
		default:
			if !s.reject(conn, fail(req, ErrorCodeOverloaded, "connection inflight limit exceeded")) {
				return
			}
			continue
		}
		releaseInflight := func() { <-conn.inflight }
		select {
		case s.globalQ <- struct{}{}:
		default:
			releaseInflight()
			if !s.reject(conn, fail(req, ErrorCodeOverloaded, "server queue overloaded")) {
				return
			}
			continue
		}

		qr := queuedRequest{req: req, conn: conn, release: func() { <-s.globalQ }}
		select {
		case <-s.done:
			qr.release()
			releaseInflight()
			return
		case s.partQ[conn.partition] <- qr:
		default:
			qr.release()
			releaseInflight()
			if !s.reject(conn, fail(req, ErrorCodeOverloaded, "partition queue overloaded")) {
				return
			}
		}
	}
}

func (s *Server) runPartitionWorker(q chan queuedRequest) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case req := <-q:
			res := s.handleRequest(req.conn, req.req)
			req.release()
			s.reply(req.conn, res)
		}
	}
}

// reply hands a worker result to the writer. The request's inflight slot
// guarantees room in replies, so this only waits when the connection is
// already gone.
func (s *Server) reply(conn *connection, res *SocketResponse) {
	select {
	case conn.replies <- res:
	case <-conn.gone:
		<-conn.inflight
	}
}

// reject queues a reader-built response, blocking while the client is not
// reading. It reports false once the connection is gone.
func (s *Server) reject(conn *connection, res *SocketResponse) bool {
	select {
	case conn.errs <- res:
		return true
	case <-conn.gone:
		return false
	}
}

func (s *Server) handleRequest(conn *connection, req *SocketRequest) *SocketResponse {
	res := &SocketResponse{RequestId: req.RequestId, ErrorCode: int32(ErrorCodeOK)}
	switch Operation(req.Operation) {
	case OperationPing:
		res.Pong = &PongResponse{UnixTimeNs: time.Now().UTC().UnixNano()}
	case OperationHealth:
		res.Health = &HealthResponse{Ok: !s.closed.Load(), Message: fmt.Sprintf("connections=%d", s.conns.Load())}
	case OperationOpen:
		gen, err := s.factory(req.Open.config())
		if err != nil {
			return fail(req, ErrorCodeBadRequest, err.Error())
		}
		conn.gen = gen
		res.Open = openResponse(gen.Config())
	case OperationNext:
		if conn.gen == nil {
			return fail(req, ErrorCodeNotFound, "no generator open")
		}
		if ev, ok := conn.gen.Next(); ok {
			return withEvents(req, res, []event.Event{ev}, conn.gen.Exhausted())
		}
		res.Exhausted = true
	case OperationTake:
		if conn.gen == nil {
			return fail(req, ErrorCodeNotFound, "no generator open")
		}
		n := min(int(req.Take.N), MaxTake)
		return withEvents(req, res, conn.gen.Take(n), conn.gen.Exhausted())
	case OperationResolve:
		ev, err := event.Resolve(req.Resolve.Payload)
		if err != nil {
			return fail(req, ErrorCodeBadRequest, err.Error())
		}
		return withEvents(req, res, []event.Event{ev}, false)
	default:
		return fail(req, ErrorCodeBadRequest, "unknown operation")
	}
	return res
}

func withEvents(req *SocketRequest, res *SocketResponse, evs []event.Event, exhausted bool) *SocketResponse {
	res.Events = make([]*Event, 0, len(evs))
	for _, ev := range evs {
		w, err := EncodeEvent(ev)
		if err != nil {
			return fail(req, ErrorCodeInternal, err.Error())
		}
		res.Events = append(res.Events, w)
	}
	res.Exhausted = exhausted
	return res
}

func fail(req *SocketRequest, code ErrorCode, msg string) *SocketResponse {
	return &SocketResponse{RequestId: req.RequestId, ErrorCode: int32(code), ErrorMessage: msg}
}

func Retryable(code int32) bool { return ErrorCode(code) == ErrorCodeOverloaded }
