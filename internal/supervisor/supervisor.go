// Package supervisor owns attached sessions: it races client messages
// against child exit, watchdog expiry and (for debug) adapter termination.
// Once a child has been spawned, teardown drains the pumps and reaps the
// child before the single terminal frame; the workdir is then removed and
// the stream closed, in that order, as the session returns.
package supervisor

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Pratham2994/OmniCompiler/internal/history"
	"github.com/Pratham2994/OmniCompiler/internal/logging"
	"github.com/Pratham2994/OmniCompiler/internal/metrics"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// Options bounds session execution.
type Options struct {
	// WallClock is the watchdog limit for a session.
	WallClock time.Duration
	// KillGrace is the window between graceful termination and SIGKILL.
	KillGrace time.Duration
	// CommandTimeout bounds one interactive debugger command.
	CommandTimeout time.Duration
}

// Supervisor attaches duplex-stream clients to their sessions.
type Supervisor struct {
	Launcher *sandbox.Launcher
	Registry *session.Registry
	History  *history.Store
	Opts     Options
}

// Attach resolves the session id, claims the record and runs the session to
// completion. The registry entry is removed when the attachment closes, so
// ids are single-use.
func (sv *Supervisor) Attach(ctx context.Context, sid string, conn Conn) {
	sess, err := sv.Registry.Claim(sid)
	if err != nil {
		_ = conn.Send(errFrame("invalid session_id"))
		_ = conn.Close()
		return
	}
	defer sv.Registry.Remove(sid)

	metrics.Get().AttachmentsActive.Inc()
	defer metrics.Get().AttachmentsActive.Dec()

	start := time.Now()
	var exitCode int
	if sess.Mode == session.ModeDebug {
		exitCode = sv.runDebug(ctx, sess, conn)
	} else {
		exitCode = sv.runPlain(ctx, sess, conn)
	}

	sess.State = session.StateClosed
	metrics.Get().SessionDuration.WithLabelValues(sess.Lang, sess.Mode).
		Observe(time.Since(start).Seconds())
	if sv.History != nil {
		sv.History.Record(history.Record{
			SessionID: sess.ID,
			Language:  sess.Lang,
			Mode:      sess.Mode,
			ExitCode:  exitCode,
			Duration:  time.Since(start),
		})
	}
}

// receiver pumps client messages into a channel so the session loop can
// select over them. closed signals disconnect.
type receiver struct {
	msgs   chan ClientMessage
	closed chan struct{}
}

func newReceiver(conn Conn) *receiver {
	r := &receiver{
		msgs:   make(chan ClientMessage, 16),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(r.closed)
		for {
			msg, err := conn.Receive()
			if err != nil {
				return
			}
			r.msgs <- msg
		}
	}()
	return r
}

// waitLatch converts a child's one-shot wait channel into a broadcast: the
// fired channel closes when the process exits and the result stays
// readable afterwards, so the session loop, the terminator, and the
// teardown path can all observe it.
type waitLatch struct {
	fired chan struct{}
	mu    sync.Mutex
	err   error
	done  bool
}

func newWaitLatch(waitCh <-chan error) *waitLatch {
	l := &waitLatch{fired: make(chan struct{})}
	go func() {
		err := <-waitCh
		l.mu.Lock()
		l.err = err
		l.done = true
		l.mu.Unlock()
		close(l.fired)
	}()
	return l
}

func (l *waitLatch) result() (error, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err, l.done
}

// sender serializes frames onto the connection and enforces the invariant
// of exactly one terminal frame per attachment: once muted, nothing else
// goes out.
type sender struct {
	conn  Conn
	mu    sync.Mutex
	muted bool
	log   *zap.Logger
}

func newSender(conn Conn, sess *session.Session) *sender {
	return &sender{
		conn: conn,
		log: logging.L().With(
			zap.String("session_id", sess.ID),
			zap.String("lang", sess.Lang),
			zap.String("mode", sess.Mode),
		),
	}
}

func (s *sender) send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return
	}
	if err := s.conn.Send(f); err != nil {
		s.log.Debug("frame send failed", zap.Error(err))
	}
	if t, _ := f["type"].(string); t != "" {
		metrics.Get().FramesSent.WithLabelValues(t).Inc()
	}
}

// mute stops all further frames. Used on client disconnect, where the
// contract is to emit nothing more.
func (s *sender) mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

// terminate emits the terminal exit frame and mutes the stream.
func (s *sender) terminate(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return
	}
	if err := s.conn.Send(exitFrame(code)); err != nil {
		s.log.Debug("exit frame send failed", zap.Error(err))
	}
	metrics.Get().FramesSent.WithLabelValues("exit").Inc()
	s.muted = true
}

// fatal emits a fatal err frame as the terminal frame and mutes the stream.
// Used for pre-spawn failures that have no exit code.
func (s *sender) fatal(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return
	}
	_ = s.conn.Send(errFrame(msg))
	s.muted = true
}

// killProcess force-kills a child if one is actually running.
func killProcess(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// terminateChild delivers graceful termination, escalating to SIGKILL after
// the grace window.
func terminateChild(cmd *exec.Cmd, latch *waitLatch, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-latch.fired:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
	}
}

// exitCodeOf maps a Wait result to the client-visible exit code; unknown
// failures report -1.
func exitCodeOf(err error, received bool) int {
	if !received {
		return -1
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
