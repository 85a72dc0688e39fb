package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// MaxFrameSize bounds the length prefix accepted from a client.
const MaxFrameSize = 16 << 20

const outboundQueueSize = 256

// ErrFrameTooLarge is reported when a client announces a frame above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Server accepts client connections and feeds their frames to a Worker.
// Frames are 4-byte big-endian length prefixed in both directions.
type Server struct {
	worker   *Worker
	listener net.Listener
	logger   hclog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*connection
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer creates a server feeding worker.
func NewServer(worker *Worker) *Server {
	return &Server{
		worker: worker,
		logger: logging.Named("server"),
		conns:  make(map[uuid.UUID]*connection),
		closed: make(chan struct{}),
	}
}

// Listen binds addr.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Info("server is listening", "addr", listener.Addr())
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown is called or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown()
		case <-s.closed:
		}
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			s.logger.Error("error accepting connection", "error", err)
			continue
		}
		c := newConnection(conn, s.logger)
		s.mu.Lock()
		select {
		case <-s.closed:
			s.mu.Unlock()
			_ = c.close()
			return nil
		default:
		}
		s.conns[c.id] = c
		s.wg.Add(2)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			c.writeLoop()
		}()
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}()
	}
}

// handleConnection reads length prefixed frames and hands them to the worker.
func (s *Server) handleConnection(ctx context.Context, c *connection) {
	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		if err := s.worker.Disconnect(context.WithoutCancel(ctx), c); err != nil {
			s.logger.Debug("disconnect not delivered", "conn", c.id, "error", err)
		}
		s.logger.Debug("connection closed", "conn", c.id, "remote", c.conn.RemoteAddr())
	}()
	s.logger.Debug("connection established", "conn", c.id, "remote", c.conn.RemoteAddr())

	// ReadFull (not Read) so that a frame is never handed over partially
	lengthBuffer := make([]byte, 4)
	for {
		if _, err := io.ReadFull(c.conn, lengthBuffer); err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				s.logger.Error("failed to read frame length", "conn", c.id, "error", err)
			}
			return
		}
		length := serde.Encoding.Uint32(lengthBuffer)
		if length > MaxFrameSize {
			s.logger.Error("closing connection", "conn", c.id, "error", ErrFrameTooLarge, "length", length)
			return
		}
		buffer := make([]byte, length)
		if _, err := io.ReadFull(c.conn, buffer); err != nil {
			if !c.isClosed() {
				s.logger.Error("error reading from connection", "conn", c.id, "error", err)
			}
			return
		}
		if err := s.worker.Frame(ctx, c, buffer); err != nil {
			return
		}
	}
}

// Shutdown stops accepting, closes every connection and waits for their goroutines.
func (s *Server) Shutdown() error {
	var errs *multierror.Error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		s.mu.Lock()
		for _, c := range s.conns {
			if err := c.close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return errs.ErrorOrNil()
}

// connection is one client socket. Sends are queued for its writer goroutine
// so the worker never blocks on the network; a client that falls too far
// behind is disconnected.
type connection struct {
	id     uuid.UUID
	conn   net.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger hclog.Logger
}

func newConnection(conn net.Conn, logger hclog.Logger) *connection {
	return &connection{
		id:     uuid.New(),
		conn:   conn,
		out:    make(chan []byte, outboundQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *connection) ID() uuid.UUID { return c.id }

func (c *connection) Send(f types.Frame) {
	e := serde.NewEncoder()
	e.PutBytes(serde.EncodeFrame(f))
	e.PutLen()
	select {
	case <-c.done:
	case c.out <- e.Bytes():
	default:
		c.logger.Warn("outbound queue full, closing connection", "conn", c.id)
		_ = c.close()
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			if _, err := c.conn.Write(b); err != nil {
				if !c.isClosed() {
					c.logger.Error("error writing to connection", "conn", c.id, "error", err)
				}
				_ = c.close()
				return
			}
		}
	}
}

func (c *connection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
