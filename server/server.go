// Package server runs the line-protocol TCP listener of a bank node: one
// accept loop, one goroutine per client session, cooperative shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/metrics"
	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/protocol"
)

// acceptDeadline bounds each Accept call so the loop observes shutdown.
const acceptDeadline = time.Second

// Dispatcher executes one request line and returns the full response
// line, newline included.
type Dispatcher interface {
	Dispatch(ctx context.Context, line, clientIP string) string
}

// Server is the TCP front of a bank node.
type Server struct {
	host       string
	port       int
	timeout    time.Duration
	dispatcher Dispatcher
	log        *logging.ComponentLogger
	mon        *monitor.Publisher
	metrics    *metrics.Metrics

	running  atomic.Bool
	listener *net.TCPListener
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*session
}

type session struct {
	conn        net.Conn
	ip          string
	port        int
	connectedAt time.Time
	status      string
}

// Options configures a Server.
type Options struct {
	Host       string
	Port       int
	Timeout    time.Duration // per-session read timeout, zero means 5s
	Dispatcher Dispatcher
	Logger     *logging.ComponentLogger
	Monitor    *monitor.Publisher
	Metrics    *metrics.Metrics
}

// New creates a stopped server.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(false)
	}
	return &Server{
		host:       opts.Host,
		port:       opts.Port,
		timeout:    opts.Timeout,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger,
		mon:        opts.Monitor,
		metrics:    opts.Metrics,
		conns:      make(map[string]*session),
	}
}

// Start binds the listener and launches the accept loop. It returns once
// the server is listening; ctx cancellation has the same effect as Stop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.mon.Publish(monitor.EventError, "Failed to start server: "+err.Error())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln.(*net.TCPListener)
	s.running.Store(true)

	s.log.Info().Str("address", ln.Addr().String()).Msg("P2P bank server started")
	s.mon.Publish(monitor.EventInfo, "Server started on "+ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	context.AfterFunc(ctx, s.Stop)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for s.running.Load() {
		if err := s.listener.SetDeadline(time.Now().Add(acceptDeadline)); err != nil {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if s.running.Load() {
				s.log.Error().Err(err).Msg("Server accept error")
			}
			return
		}

		s.wg.Add(1)
		go s.handleClient(ctx, conn)
	}
}

// handleClient serves one session: read a command, dispatch, write the
// response, until the peer goes away, the read times out, or the node
// stops. Domain errors never end a session.
func (s *Server) handleClient(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	id := conn.RemoteAddr().String()
	ip, port := splitHostPort(id)

	s.mu.Lock()
	s.conns[id] = &session{
		conn:        conn,
		ip:          ip,
		port:        port,
		connectedAt: time.Now(),
		status:      "active",
	}
	s.mu.Unlock()
	s.metrics.ConnectionOpened()

	s.log.Info().Str("connection", id).Msg("New connection")
	s.mon.Publish(monitor.EventConnection, "New connection: "+id)

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.metrics.ConnectionClosed()
		s.log.Info().Str("connection", id).Msg("Connection closed")
		s.mon.Publish(monitor.EventConnection, "Closed: "+id)
	}()

	buf := make([]byte, protocol.MaxLineBytes)
	for s.running.Load() {
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return
		}

		read, err := conn.Read(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				s.log.Warn().Str("connection", id).Msg("Connection timeout")
				s.mon.Publish(monitor.EventWarning, "Timeout: "+id)
				return
			}
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Str("connection", id).Err(err).Msg("Session read ended")
			}
			return
		}
		if read == 0 {
			return
		}

		data := strings.TrimSpace(string(buf[:read]))
		if data == "" {
			continue
		}

		s.log.Info().Str("connection", id).Str("request", data).Msg("Received command")
		s.mon.Publish(monitor.EventCommand, id+": "+data)

		response := s.dispatcher.Dispatch(ctx, data, ip)

		if _, err := conn.Write([]byte(response)); err != nil {
			s.log.Error().Str("connection", id).Err(err).Msg("Session write failed")
			s.mon.Publish(monitor.EventError, "Client error "+id+": "+err.Error())
			return
		}

		s.log.Info().Str("connection", id).Str("response", strings.TrimSpace(response)).Msg("Sent response")
		s.mon.Publish(monitor.EventResponse, id+": "+strings.TrimSpace(response))
	}
}

// Stop closes the listener and every active session, then waits for all
// session goroutines to exit. Safe to call more than once.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, sess := range s.conns {
		sess.conn.Close()
	}
	s.conns = make(map[string]*session)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("Server stopped")
	s.mon.Publish(monitor.EventInfo, "Server stopped")
}

// Running reports whether the server is between Start and Stop.
func (s *Server) Running() bool {
	return s.running.Load()
}

// ActiveConnections snapshots the open sessions for the dashboard.
func (s *Server) ActiveConnections() []monitor.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]monitor.Connection, 0, len(s.conns))
	for id, sess := range s.conns {
		conns = append(conns, monitor.Connection{
			ID:          id,
			IP:          sess.ip,
			Port:        sess.port,
			ConnectedAt: sess.connectedAt,
			Status:      sess.status,
		})
	}
	return conns
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := net.LookupPort("tcp", portStr)
	return host, port
}
