// Package protocol implements the PostgreSQL wire protocol.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/executor"
	"github.com/jackc/pgproto3/v2"
	"go.uber.org/zap"
)

// Metric names recorded by the server
const (
	MetricStatements        = "cimodel.server.statements"
	MetricStatementDuration = "cimodel.server.statement.duration"
	MetricStatementErrors   = "cimodel.server.statement.errors"
	MetricConnections       = "cimodel.server.connections"
)

const defaultServerVersion = "15.0 (cimodel)"

// Options configures a Server
type Options struct {
	Logger  *zap.Logger
	Metrics cimodel.Metrics
	// ServerVersion is reported in the server_version parameter
	ServerVersion string
}

// Server accepts PostgreSQL clients using the simple query protocol and runs
// their statements on an executor
type Server struct {
	exec    *executor.Executor
	logger  *zap.Logger
	metrics cimodel.Metrics
	version string

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   atomic.Bool
	nextPID  atomic.Uint32
	active   atomic.Int64
}

// NewServer creates a new protocol server
func NewServer(exec *executor.Executor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &cimodel.NoOpMetrics{}
	}
	version := opts.ServerVersion
	if version == "" {
		version = defaultServerVersion
	}
	return &Server{
		exec:    exec,
		logger:  logger,
		metrics: metrics,
		version: version,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds addr; use ":0" for an ephemeral port
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Listen
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is done or Close is called
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("protocol: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept error", zap.Error(err))
			continue
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConnection(ctx, conn)
		}()
	}
}

// Close stops accepting and closes every open connection
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) track(conn net.Conn, add bool) {
	delta := int64(1)
	s.mu.Lock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
		delta = -1
	}
	s.mu.Unlock()

	s.metrics.Gauge(MetricConnections, float64(s.active.Add(delta)))
}

// handleConnection processes a single client connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))

	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
	if err := s.startup(conn, backend, log); err != nil {
		if !errors.Is(err, io.EOF) {
			log.Debug("startup failed", zap.Error(err))
		}
		return
	}

	session := s.exec.NewSession()
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("rollback on disconnect failed", zap.Error(err))
		}
	}()

	// set after an extended-protocol message until the next Sync
	discarding := false

	for {
		msg, err := backend.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				log.Debug("receive error", zap.Error(err))
			}
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			if err := s.handleQuery(ctx, conn, session, m.String); err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case *pgproto3.Terminate:
			log.Debug("client terminated connection")
			return

		case *pgproto3.Sync:
			discarding = false
			if err := backend.Send(&pgproto3.ReadyForQuery{TxStatus: byte(session.Status())}); err != nil {
				return
			}

		case *pgproto3.Parse, *pgproto3.Bind, *pgproto3.Describe, *pgproto3.Execute, *pgproto3.Close:
			if discarding {
				continue
			}
			discarding = true
			err := backend.Send(&pgproto3.ErrorResponse{
				Severity: "ERROR",
				Code:     executor.CodeFeatureUnsupported,
				Message:  "extended query protocol is not supported; use the simple protocol",
			})
			if err != nil {
				return
			}

		case *pgproto3.Flush:

		default:
			log.Debug("unhandled message", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// startup declines SSL, accepts any credentials and sends the session parameters
func (s *Server) startup(conn net.Conn, backend *pgproto3.Backend, log *zap.Logger) error {
	for {
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *pgproto3.SSLRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return fmt.Errorf("write SSL response: %w", err)
			}

		case *pgproto3.CancelRequest:
			return errors.New("cancel requests are not supported")

		case *pgproto3.StartupMessage:
			log.Info("client connected",
				zap.String("user", m.Parameters["user"]),
				zap.String("database", m.Parameters["database"]),
			)

			var b batch
			b.add(&pgproto3.AuthenticationOk{})
			for _, p := range []struct{ name, value string }{
				{"server_version", s.version},
				{"server_encoding", "UTF8"},
				{"client_encoding", "UTF8"},
				{"standard_conforming_strings", "on"},
				{"DateStyle", "ISO, MDY"},
				{"TimeZone", "UTC"},
				{"integer_datetimes", "on"},
			} {
				b.add(&pgproto3.ParameterStatus{Name: p.name, Value: p.value})
			}
			b.add(&pgproto3.BackendKeyData{ProcessID: s.nextPID.Add(1), SecretKey: 0})
			b.add(&pgproto3.ReadyForQuery{TxStatus: byte(executor.TxIdle)})
			return b.flush(conn)

		default:
			return fmt.Errorf("unexpected startup message %T", msg)
		}
	}
}

// handleQuery runs every statement of a simple query and writes the results
// in one batch. Execution stops at the first error.
func (s *Server) handleQuery(ctx context.Context, conn net.Conn, session *executor.Session, query string) error {
	var b batch

	stmts := executor.SplitStatements(query)
	if len(stmts) == 0 {
		b.add(&pgproto3.EmptyQueryResponse{})
	}

	for _, sql := range stmts {
		start := time.Now()
		res, err := session.Execute(ctx, sql)
		if err != nil {
			code := executor.Code(err)
			s.metrics.Increment(MetricStatementErrors, "code", code)
			b.add(&pgproto3.ErrorResponse{Severity: "ERROR", Code: code, Message: err.Error()})
			break
		}
		encodeResult(&b, res)

		command := commandOf(res)
		s.metrics.Increment(MetricStatements, "command", command)
		s.metrics.Timing(MetricStatementDuration, time.Since(start), "command", command)
	}

	b.add(&pgproto3.ReadyForQuery{TxStatus: byte(session.Status())})
	return b.flush(conn)
}

// batch collects encoded backend messages for a single write. The first
// encode error is kept and reported by flush.
type batch struct {
	buf []byte
	err error
}

func (b *batch) add(msg pgproto3.BackendMessage) {
	if b.err != nil {
		return
	}
	b.buf, b.err = msg.Encode(b.buf)
}

func (b *batch) flush(w io.Writer) error {
	if b.err != nil {
		return fmt.Errorf("encode message: %w", b.err)
	}
	_, err := w.Write(b.buf)
	return err
}

func encodeResult(b *batch, res *executor.Result) {
	if res.Empty {
		b.add(&pgproto3.EmptyQueryResponse{})
		return
	}

	if res.HasRows() {
		fields := make([]pgproto3.FieldDescription, len(res.Columns))
		for i, name := range res.Columns {
			fields[i] = pgproto3.FieldDescription{
				Name:         []byte(name),
				DataTypeOID:  res.OIDs[i],
				DataTypeSize: -1,
				TypeModifier: -1,
				Format:       0,
			}
		}
		b.add(&pgproto3.RowDescription{Fields: fields})

		for _, row := range res.Rows {
			values := make([][]byte, len(row))
			for i, v := range row {
				values[i] = executor.EncodeText(v, res.OIDs[i])
			}
			b.add(&pgproto3.DataRow{Values: values})
		}
	}

	b.add(&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)})
}

// commandOf returns the first word of the command tag, e.g. "SELECT"
func commandOf(res *executor.Result) string {
	if res.Empty {
		return "EMPTY"
	}
	command, _, _ := strings.Cut(res.Tag, " ")
	if command == "CREATE" || command == "DROP" {
		return res.Tag
	}
	return command
}
