package debug

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// jdbAdapter drives jdb over stdio. jdb has no framed responses: a command
// future buffers lines until a prompt ("main[1] ", "> ") fulfills it. Pause
// detection uses only the deterministic "Breakpoint hit" / "Step completed"
// markers with their "(File.java:NNN)" suffix; everything else jdb prints
// while running is treated as program output, since the debuggee shares
// jdb's stdio.
type jdbAdapter struct {
	h       *session.DebugHandle
	workdir string
	initial []session.Breakpoint
	timeout time.Duration

	sink *eventSink

	writeMu sync.Mutex
	slot    commandSlot
	buffer  []string
	bufMu   sync.Mutex
	bps     *breakpointRegistry

	stateMu      sync.Mutex
	paused       bool
	pendingPause string
}

var (
	jdbPromptRe   = regexp.MustCompile(`^(>|\S+\[\d+\])$`)
	jdbLocationRe = regexp.MustCompile(`\(([\w$.]+\.java):(\d+)\)`)
	jdbLineRe     = regexp.MustCompile(`line=(\d+)`)
	jdbWhereRe    = regexp.MustCompile(`\[\d+\]\s+([\w$.]+)\.([\w$<>]+)\s+\(([\w$.]+\.java):(\d+)\)`)
	jdbLocalRe    = regexp.MustCompile(`^\s*([\w$]+)\s=\s(.*)$`)
)

func newJDBAdapter(s *session.Session, timeout CommandTimeout) *jdbAdapter {
	return &jdbAdapter{
		h:       s.Debug,
		workdir: s.Workdir,
		initial: s.Breakpoints,
		timeout: time.Duration(timeout),
		sink:    newEventSink(64),
		bps:     newBreakpointRegistry(s.Workdir),
	}
}

func (a *jdbAdapter) Events() <-chan Event { return a.sink.events() }

func (a *jdbAdapter) Start(ctx context.Context) error {
	go a.pumpStdout()
	go a.pumpStderr()

	for _, bp := range a.initial {
		if _, err := a.AddBreakpoint(ctx, bp.File, bp.Line); err != nil {
			a.sink.output("stderr", fmt.Sprintf("failed to set breakpoint %s:%d: %v\n", bp.File, bp.Line, err))
		}
	}
	if len(a.initial) == 0 {
		// No initial breakpoints: stop at main so the first attach pauses.
		_, _ = a.send(ctx, fmt.Sprintf("stop in %s.main", a.h.EntryClass), true)
	}

	if _, err := a.send(ctx, "run", false); err != nil {
		return fmt.Errorf("failed to start debug target: %w", err)
	}
	return nil
}

func (a *jdbAdapter) Continue(ctx context.Context) error { return a.exec(ctx, "cont") }
func (a *jdbAdapter) Next(ctx context.Context) error     { return a.exec(ctx, "next") }
func (a *jdbAdapter) StepIn(ctx context.Context) error   { return a.exec(ctx, "step") }
func (a *jdbAdapter) StepOut(ctx context.Context) error  { return a.exec(ctx, "step up") }

func (a *jdbAdapter) exec(ctx context.Context, cmd string) error {
	a.setPaused(false)
	_, err := a.send(ctx, cmd, false)
	return err
}

// breakpointClass maps a source file to the jdb location class: the file
// base name without extension, sources being restricted to the default
// package.
func breakpointClass(workdir, file string) string {
	rel := CanonicalPath(workdir, file)
	base := rel
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".java")
}

func (a *jdbAdapter) AddBreakpoint(ctx context.Context, file string, line int) (string, error) {
	cls := breakpointClass(a.workdir, file)
	resp, err := a.send(ctx, fmt.Sprintf("stop at %s:%d", cls, line), true)
	if err != nil {
		return "", err
	}
	if strings.Contains(resp, "Unable to set") || strings.Contains(resp, "Invalid") {
		return "", fmt.Errorf("breakpoint rejected at %s:%d", cls, line)
	}
	id := fmt.Sprintf("%s:%d", cls, line)
	a.bps.put(file, line, id)
	return id, nil
}

func (a *jdbAdapter) RemoveBreakpoint(ctx context.Context, file string, line int, id string) (string, error) {
	if id == "" {
		var ok bool
		if id, ok = a.bps.lookup(file, line); !ok {
			return "", fmt.Errorf("breakpoint id not found")
		}
	}
	if _, err := a.send(ctx, "clear "+id, true); err != nil {
		return "", err
	}
	a.bps.removeByID(id)
	return id, nil
}

func (a *jdbAdapter) Evaluate(ctx context.Context, expr string) (string, error) {
	if !a.isPaused() {
		return "", ErrNotPaused
	}
	resp, err := a.send(ctx, "print "+expr, true)
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	// jdb echoes ` expr = value`; keep only the value.
	if i := strings.Index(resp, " = "); i >= 0 {
		resp = strings.TrimSpace(resp[i+3:])
	}
	return resp, nil
}

func (a *jdbAdapter) SendStdin(string) error {
	// jdb owns its stdio for commands; the debuggee has no side channel.
	return nil
}

func (a *jdbAdapter) Stop() {
	_, _ = a.send(context.Background(), "quit", false)
}

func (a *jdbAdapter) send(ctx context.Context, cmd string, expect bool) (string, error) {
	a.writeMu.Lock()
	var ch chan cmdResult
	if expect {
		a.bufMu.Lock()
		a.buffer = nil
		a.bufMu.Unlock()
		ch = a.slot.arm()
	}
	_, err := io.WriteString(a.h.Stdin, cmd+"\n")
	a.writeMu.Unlock()
	if err != nil {
		if ch != nil {
			a.slot.disarm(ch)
		}
		return "", fmt.Errorf("jdb stdin closed: %w", err)
	}
	if !expect {
		return "", nil
	}
	return a.slot.await(ctx, ch, a.timeout)
}

func (a *jdbAdapter) pumpStdout() {
	isPrompt := func(s string) bool { return jdbPromptRe.MatchString(s) || strings.HasSuffix(s, ">") }
	pumpPromptLines(a.h.Stdout, isPrompt,
		a.handleLine,
		func() {
			a.slot.fail(fmt.Errorf("jdb stdout closed"))
			a.sink.terminate("")
		})
}

func (a *jdbAdapter) handleLine(line string, prompt bool) {
	if prompt {
		if a.slot.armed() {
			a.bufMu.Lock()
			resp := strings.Join(a.buffer, "\n")
			a.buffer = nil
			a.bufMu.Unlock()
			a.slot.fulfill(resp)
			return
		}
		if pending := a.takePendingPause(); pending != "" {
			go a.handleStop(pending)
		}
		return
	}

	if a.slot.armed() {
		a.bufMu.Lock()
		a.buffer = append(a.buffer, line)
		a.bufMu.Unlock()
		return
	}

	switch {
	case strings.Contains(line, "Breakpoint hit") || strings.Contains(line, "Step completed"):
		a.setPendingPause(line)

	case strings.Contains(line, "The application exited") || strings.Contains(line, "VM disconnected"):
		a.sink.terminate("exited")

	default:
		a.sink.output("stdout", line+"\n")
	}
}

// handleStop issues where and locals after the prompt that follows a pause
// marker, then emits one paused event.
func (a *jdbAdapter) handleStop(marker string) {
	top := Frame{}
	if m := jdbLocationRe.FindStringSubmatch(marker); m != nil {
		top.File = m[1]
		top.Line, _ = strconv.Atoi(m[2])
	} else if m := jdbLineRe.FindStringSubmatch(marker); m != nil {
		top.Line, _ = strconv.Atoi(m[1])
	}

	whereResp, _ := a.send(context.Background(), "where", true)
	localsResp, _ := a.send(context.Background(), "locals", true)

	stack := parseJDBStack(whereResp)
	locals := parseJDBLocals(localsResp)

	if len(stack) > 0 {
		if top.File == "" {
			top.File = stack[0].File
		}
		if top.Line == 0 {
			top.Line = stack[0].Line
		}
		top.Function = stack[0].Function
	}

	a.setPaused(true)
	a.sink.emit(Event{Kind: EventPaused, Paused: &Paused{
		File:     top.File,
		Line:     top.Line,
		Function: top.Function,
		Stack:    stack,
		Locals:   locals,
	}})
}

func parseJDBStack(resp string) []Frame {
	var frames []Frame
	for _, line := range strings.Split(resp, "\n") {
		if m := jdbWhereRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[4])
			frames = append(frames, Frame{
				File:     m[3],
				Line:     n,
				Function: m[1] + "." + m[2],
			})
		}
	}
	return frames
}

func parseJDBLocals(resp string) map[string]string {
	locals := make(map[string]string)
	for _, line := range strings.Split(resp, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasSuffix(trimmed, ":") {
			// Section headers like "Local variables:".
			continue
		}
		if m := jdbLocalRe.FindStringSubmatch(line); m != nil {
			locals[m[1]] = m[2]
		}
	}
	return locals
}

func (a *jdbAdapter) pumpStderr() {
	buf := make([]byte, 1024)
	for {
		n, err := a.h.Stderr.Read(buf)
		if n > 0 {
			a.sink.output("stderr", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (a *jdbAdapter) setPaused(v bool) {
	a.stateMu.Lock()
	a.paused = v
	a.stateMu.Unlock()
}

func (a *jdbAdapter) isPaused() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.paused
}

func (a *jdbAdapter) setPendingPause(marker string) {
	a.stateMu.Lock()
	a.pendingPause = marker
	a.stateMu.Unlock()
}

func (a *jdbAdapter) takePendingPause() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	p := a.pendingPause
	a.pendingPause = ""
	return p
}
