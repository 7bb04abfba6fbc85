package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/debug"
	"github.com/Pratham2994/OmniCompiler/internal/metrics"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// runDebug supervises a debug-mode session whose backend was spawned at
// create time. The loop races adapter events, client commands, backend
// exit and the watchdog; every path converges on the same teardown.
func (sv *Supervisor) runDebug(ctx context.Context, sess *session.Session, conn Conn) int {
	out := newSender(conn, sess)
	defer conn.Close()

	h := sess.Debug
	if h == nil || sess.Workdir == "" {
		out.fatal("debug session missing process/workdir")
		return -1
	}
	defer sandbox.Cleanup(sess.Workdir)
	defer func() {
		if h.PTY != nil {
			h.PTY.Close()
		}
	}()

	latch := newWaitLatch(h.WaitCh)
	select {
	case <-latch.fired:
		out.fatal("debug session already ended")
		return -1
	default:
	}

	out.send(Frame{"type": "status", "phase": "starting", "lang": sess.Lang, "entry": sess.Entry, "mode": "debug"})

	adapter, err := debug.New(sess, debug.CommandTimeout(sv.Opts.CommandTimeout))
	if err != nil {
		out.fatal(err.Error())
		terminateChild(h.Cmd, latch, sv.Opts.KillGrace)
		return -1
	}

	cmdCtx, cancelCmds := context.WithCancel(ctx)
	defer cancelCmds()

	if err := adapter.Start(cmdCtx); err != nil {
		out.fatal(err.Error())
		terminateChild(h.Cmd, latch, sv.Opts.KillGrace)
		return -1
	}

	// Initial breakpoints are synced to the backend before the target runs.
	out.send(debugEvent("breakpoints", Frame{"synced": true}))
	out.send(Frame{"type": "status", "phase": "running", "mode": "debug"})
	sess.State = session.StateRunning

	gate := &session.InputGate{}
	recv := newReceiver(conn)
	watchdog := time.NewTimer(sv.Opts.WallClock)
	defer watchdog.Stop()

	disconnected := false
	events := adapter.Events()

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			sv.forwardEvent(out, gate, ev)
			if ev.Kind == debug.EventTerminated {
				break loop
			}

		case msg := <-recv.msgs:
			switch msg.Type {
			case "debug_cmd":
				if msg.Command == "stop" {
					out.send(Frame{"type": "status", "phase": "stopping"})
					sess.State = session.StateStopping
					adapter.Stop()
					go terminateChild(h.Cmd, latch, sv.Opts.KillGrace)
					continue
				}
				sv.handleDebugCommand(cmdCtx, out, adapter, msg)

			case "stdin", "in":
				if err := adapter.SendStdin(msg.Data); err == nil {
					if gate.Set(false) {
						out.send(awaitingFrame(false))
					}
				}

			case "stop", "close":
				out.send(Frame{"type": "status", "phase": "stopping"})
				sess.State = session.StateStopping
				adapter.Stop()
				go terminateChild(h.Cmd, latch, sv.Opts.KillGrace)

			default:
				out.send(errFrame("unknown msg type: " + msg.Type))
			}

		case <-recv.closed:
			disconnected = true
			out.mute()
			adapter.Stop()
			killProcess(h.Cmd)
			break loop

		case <-latch.fired:
			break loop

		case <-watchdog.C:
			metrics.Get().WatchdogKills.Inc()
			adapter.Stop()
			killProcess(h.Cmd)

		case <-ctx.Done():
			adapter.Stop()
			killProcess(h.Cmd)
			break loop
		}
	}

	cancelCmds()

	// The adapter may still be draining; make sure the backend dies, then
	// collect the exit code.
	if _, fired := latch.result(); !fired {
		terminateChild(h.Cmd, latch, sv.Opts.KillGrace)
	}
	select {
	case <-latch.fired:
	case <-time.After(sv.Opts.KillGrace):
	}
	go func() {
		for range events {
		}
	}()

	werr, fired := latch.result()
	code := exitCodeOf(werr, fired)

	if disconnected {
		out.mute()
	} else {
		out.terminate(code)
	}
	return code
}

// forwardEvent maps one uniform adapter event to client frames.
func (sv *Supervisor) forwardEvent(out *sender, gate *session.InputGate, ev debug.Event) {
	switch ev.Kind {
	case debug.EventPaused:
		out.send(debugEvent("paused", ev.Paused))

	case debug.EventException:
		out.send(debugEvent("exception", ev.Exception))

	case debug.EventOutput:
		kind := "out"
		if ev.Output.Stream == "stderr" {
			kind = "err"
		}
		out.send(outFrame(kind, ev.Output.Data))

	case debug.EventAwaitInput:
		if gate.Set(true) {
			out.send(awaitingFrame(true))
		}

	case debug.EventTerminated:
		out.send(Frame{"type": "status", "phase": "exited"})
	}
}

// handleDebugCommand dispatches one debug_cmd message to the adapter and
// acknowledges the result. Backend jargon never reaches the client: errors
// are flattened to concise messages.
func (sv *Supervisor) handleDebugCommand(ctx context.Context, out *sender, adapter debug.Adapter, msg ClientMessage) {
	var err error
	switch msg.Command {
	case "continue":
		err = adapter.Continue(ctx)
	case "next":
		err = adapter.Next(ctx)
	case "step_in":
		err = adapter.StepIn(ctx)
	case "step_out":
		err = adapter.StepOut(ctx)

	case "add_breakpoint":
		id, aerr := adapter.AddBreakpoint(ctx, msg.File, msg.Line)
		if aerr != nil {
			err = aerr
			break
		}
		out.send(debugEvent("breakpoints", Frame{
			"added": []Frame{{"file": msg.File, "line": msg.Line, "id": id}},
		}))

	case "remove_breakpoint":
		id, rerr := adapter.RemoveBreakpoint(ctx, msg.File, msg.Line, msg.ID)
		if rerr != nil {
			err = rerr
			break
		}
		out.send(debugEvent("breakpoints", Frame{
			"removed": []Frame{{"file": msg.File, "line": msg.Line, "id": id}},
		}))

	case "evaluate":
		value, eerr := adapter.Evaluate(ctx, msg.Expr)
		switch {
		case errors.Is(eerr, debug.ErrNotPaused):
			out.send(debugEvent("evaluate_result", Frame{"expr": msg.Expr, "error": "not paused"}))
		case eerr != nil:
			out.send(debugEvent("evaluate_result", Frame{"expr": msg.Expr, "error": eerr.Error()}))
		default:
			out.send(debugEvent("evaluate_result", Frame{"expr": msg.Expr, "value": value}))
		}

	default:
		out.send(errFrame("unknown debug cmd: " + msg.Command))
	}

	if err != nil {
		out.send(errFrame("debug command failed: " + err.Error()))
	}
}
