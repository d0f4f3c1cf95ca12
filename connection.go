package main

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// closeReason records why a connWorker's state machine terminated, purely
// for logging - it never surfaces to the client or the Supervisor.
type closeReason string

const (
	closeTimeout       closeReason = "idle_timeout"
	closePeerClosed    closeReason = "peer_closed"
	closeProtocolError closeReason = "protocol_error"
	closeShutdown      closeReason = "shutdown"
)

// connWorker owns one client socket end-to-end: it drives framer -> parser
// -> executor, writes replies, and enforces the idle-read timeout. Its
// buffer and socket are exclusive to this worker; the Store is the only
// thing it shares with the rest of the server.
type connWorker struct {
	conn         net.Conn
	framer       Framer
	executor     *Executor
	idleTimeout  time.Duration
	readChunk    int
	lastActivity time.Time
	logger       *zap.Logger
}

func newConnWorker(conn net.Conn, executor *Executor, idleTimeout time.Duration, readChunk int, logger *zap.Logger) *connWorker {
	return &connWorker{
		conn:         conn,
		executor:     executor,
		idleTimeout:  idleTimeout,
		readChunk:    readChunk,
		lastActivity: time.Now(),
		logger:       logger.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Run drives the Reading/Framing/Closing state machine until the connection
// ends or ctx is canceled (Supervisor shutdown).
func (w *connWorker) Run(ctx context.Context) {
	defer w.conn.Close()

	chunk := make([]byte, w.readChunk)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("closing connection", zap.String("reason", string(closeShutdown)))
			return
		default:
		}

		deadline := w.lastActivity.Add(w.idleTimeout)
		if err := w.conn.SetReadDeadline(deadline); err != nil {
			w.logger.Debug("closing connection", zap.String("reason", string(closeProtocolError)), zap.Error(err))
			return
		}

		n, err := w.conn.Read(chunk)
		if n > 0 {
			w.framer.Feed(chunk[:n])
			w.lastActivity = time.Now()
			if !w.drainFramer(ctx) {
				return
			}
			continue
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			w.logger.Debug("closing connection", zap.String("reason", string(closePeerClosed)))
			return
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if time.Since(w.lastActivity) >= w.idleTimeout {
				w.logger.Debug("closing connection", zap.String("reason", string(closeTimeout)))
				return
			}
			continue
		}

		w.logger.Debug("closing connection", zap.String("reason", string(closePeerClosed)), zap.Error(err))
		return
	}
}

// drainFramer processes every complete record currently buffered. It
// returns false if the connection must close (parser/executor error).
func (w *connWorker) drainFramer(ctx context.Context) bool {
	for {
		rec, ok := w.framer.Next()
		if !ok {
			return true
		}

		req, err := ParseRequest(rec)
		if err != nil {
			w.logger.Debug("closing connection", zap.String("reason", string(closeProtocolError)), zap.Error(err))
			return false
		}

		res, noReply, err := w.executor.Execute(ctx, req)
		if err != nil {
			w.logger.Debug("closing connection", zap.String("reason", string(closeProtocolError)), zap.Error(err))
			return false
		}

		if !noReply {
			buf := res.Value()
			buf.WriteString("\r\n")
			_, writeErr := w.conn.Write(buf.Bytes())
			res.Release()
			if writeErr != nil {
				w.logger.Debug("write failed, closing connection", zap.Error(writeErr))
				return false
			}
		} else {
			res.Release()
		}
	}
}
