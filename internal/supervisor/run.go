package supervisor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/metrics"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
	"github.com/Pratham2994/OmniCompiler/internal/stream"
)

// frameEmitter routes pump output through the sender, funneling
// awaiting-input transitions through the session gate so edges strictly
// alternate.
type frameEmitter struct {
	out  *sender
	gate *session.InputGate
}

func (e *frameEmitter) Data(kind, data string) {
	e.out.send(outFrame(kind, data))
}

func (e *frameEmitter) Await(v bool) {
	if e.gate.Set(v) {
		e.out.send(awaitingFrame(v))
	}
}

// runPlain executes a run-mode session: materialize, compile when needed,
// spawn, pump output, forward stdin, and race client messages against
// child exit and the watchdog. Returns the exit code it reported (or -1).
func (sv *Supervisor) runPlain(ctx context.Context, sess *session.Session, conn Conn) int {
	out := newSender(conn, sess)
	defer conn.Close()

	out.send(Frame{"type": "status", "phase": "starting", "lang": sess.Lang, "entry": sess.Entry})

	prepared, err := sv.Launcher.Prepare(sess)
	if err != nil {
		out.fatal(err.Error())
		return -1
	}
	sess.Workdir = prepared.Workdir
	defer sandbox.Cleanup(prepared.Workdir)

	if prepared.Compile != nil {
		compileCtx, cancel := context.WithTimeout(ctx, sv.Opts.WallClock)
		err := sandbox.RunCompile(compileCtx, prepared.Compile)
		cancel()
		if err != nil {
			out.fatal(err.Error())
			return -1
		}
	}

	child, err := sandbox.Start(prepared.Run)
	if err != nil {
		out.fatal(err.Error())
		return -1
	}
	latch := newWaitLatch(child.WaitCh)

	using := "local"
	if sv.Launcher.UseDocker {
		using = "docker"
	}
	out.send(Frame{"type": "status", "phase": "exec", "using": using, "cmd": prepared.Run.Desc})
	out.send(Frame{"type": "status", "phase": "running"})
	sess.State = session.StateRunning

	gate := &session.InputGate{}
	emitter := &frameEmitter{out: out, gate: gate}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		stream.Pump(child.Stdout, stream.KindOut, emitter)
	}()
	go func() {
		defer pumps.Done()
		stream.Pump(child.Stderr, stream.KindErr, emitter)
	}()

	recv := newReceiver(conn)
	watchdog := time.NewTimer(sv.Opts.WallClock)
	defer watchdog.Stop()

	var stdinMu sync.Mutex
	disconnected := false

loop:
	for {
		select {
		case msg := <-recv.msgs:
			switch msg.Type {
			case "in":
				if msg.Data == "" {
					continue
				}
				stdinMu.Lock()
				_, werr := io.WriteString(child.Stdin, msg.Data)
				stdinMu.Unlock()
				// Broken pipe on late input is ignored; the child may have
				// exited between the prompt and the reply.
				_ = werr
				emitter.Await(false)

			case "stop", "close":
				out.send(Frame{"type": "status", "phase": "stopping"})
				sess.State = session.StateStopping
				go terminateChild(child.Cmd, latch, sv.Opts.KillGrace)

			default:
				out.send(errFrame("unknown msg type: " + msg.Type))
			}

		case <-recv.closed:
			// Client gone: kill the child and emit nothing further.
			disconnected = true
			out.mute()
			_ = child.Cmd.Process.Kill()
			break loop

		case <-latch.fired:
			break loop

		case <-watchdog.C:
			metrics.Get().WatchdogKills.Inc()
			_ = child.Cmd.Process.Kill()
			// The kill resolves the latch; keep looping to collect the code.

		case <-ctx.Done():
			_ = child.Cmd.Process.Kill()
			break loop
		}
	}

	// Drain pumps so residual output precedes the terminal frame, then wait
	// for the exit code. Both waits are bounded: a wedged pipe must not
	// hold the teardown hostage.
	pumpsDone := make(chan struct{})
	go func() {
		pumps.Wait()
		close(pumpsDone)
	}()
	select {
	case <-pumpsDone:
	case <-time.After(2 * sv.Opts.KillGrace):
	}
	select {
	case <-latch.fired:
	case <-time.After(sv.Opts.KillGrace):
	}
	werr, fired := latch.result()
	code := exitCodeOf(werr, fired)

	if disconnected {
		out.mute()
	} else {
		out.terminate(code)
	}
	return code
}
