// Package sandbox materializes session files into transient workdirs and
// builds the per-language spawn specs (container or host) for run and debug
// sessions. Containers run with networking disabled, one CPU, 512 MiB of
// memory and a 256-pid cap; the workdir is mounted at /work, read-only for
// interpreted run sessions and read-write when a compiler or debugger must
// write next to the sources.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// Launcher builds spawn specs and starts sandbox processes.
type Launcher struct {
	// UseDocker selects containerized execution. When false, children run
	// directly on the host with equivalent command shapes.
	UseDocker bool

	// ImagePrefix is the runner image repository prefix.
	ImagePrefix string
}

// imageSuffix maps a language to its runner image tag suffix.
var imageSuffix = map[string]string{
	session.LangPython:     "python",
	session.LangJavaScript: "node",
	session.LangCpp:        "cpp",
	session.LangJava:       "java",
	session.LangGo:         "go",
}

func (l *Launcher) image(lang string) string {
	return l.ImagePrefix + ":" + imageSuffix[lang]
}

// Available reports whether the launcher can spawn anything at all. With
// docker enabled the docker CLI must be on PATH; Prepare and PrepareDebug
// check it before materializing any files, so the failure is fatal and
// comes before any spawn.
func (l *Launcher) Available() error {
	if !l.UseDocker {
		return nil
	}
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker is required for execution but was not found on PATH")
	}
	return nil
}

// Prepared is the output of run-mode preparation: an optional compile step
// followed by the child the supervisor owns.
type Prepared struct {
	Workdir string
	Compile *Spec
	Run     *Spec
}

// Child is a started run-mode process with its standard streams.
type Child struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	WaitCh <-chan error
}

// Materialize creates a workdir and writes the session files into it with
// LF newlines and UTF-8 content. Unsafe names are rejected.
func Materialize(prefix string, files []session.FileSpec) (string, error) {
	for _, f := range files {
		if !session.SafeName.MatchString(f.Name) {
			return "", fmt.Errorf("invalid filename: %s", f.Name)
		}
	}
	workdir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	for _, f := range files {
		content := strings.ReplaceAll(f.Content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")
		if err := os.WriteFile(filepath.Join(workdir, f.Name), []byte(content), 0o644); err != nil {
			os.RemoveAll(workdir)
			return "", fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return workdir, nil
}

// Cleanup removes a session workdir.
func Cleanup(workdir string) {
	if workdir != "" {
		os.RemoveAll(workdir)
	}
}

// Prepare materializes files and builds the run-mode spawn spec(s) for a
// session. The returned workdir is owned by the caller.
func (l *Launcher) Prepare(s *session.Session) (*Prepared, error) {
	if err := l.Available(); err != nil {
		return nil, err
	}
	workdir, err := Materialize("oc-"+s.Lang+"-", s.Files)
	if err != nil {
		return nil, err
	}
	p, err := l.runSpecs(workdir, s.Lang, s.Entry, s.Args)
	if err != nil {
		Cleanup(workdir)
		return nil, err
	}
	p.Workdir = workdir
	return p, nil
}

func (l *Launcher) runSpecs(workdir, lang, entry string, args []string) (*Prepared, error) {
	p := &Prepared{}

	switch lang {
	case session.LangPython:
		bootstrap := pythonBootstrap(entry, args)
		if err := os.WriteFile(filepath.Join(workdir, bootstrapName), []byte(bootstrap), 0o644); err != nil {
			return nil, fmt.Errorf("write bootstrap: %w", err)
		}
		if l.UseDocker {
			argv := append([]string{"docker"}, dockerRunArgs(workdir, true, false, map[string]string{
				"PYTHONUNBUFFERED": "1",
				"PYTHONIOENCODING": "UTF-8",
			})...)
			argv = append(argv, l.image(lang), "python", "-u", bootstrapName)
			p.Run = &Spec{Argv: argv, Dir: workdir}
		} else {
			py, err := lookPathAny("python3", "python")
			if err != nil {
				return nil, err
			}
			p.Run = &Spec{Argv: []string{py, "-u", bootstrapName}, Dir: workdir,
				Env: append(os.Environ(), "PYTHONUNBUFFERED=1")}
		}

	case session.LangJavaScript:
		line := ptyWrap("node " + shQuote(entry) + argSuffix(args))
		if l.UseDocker {
			argv := append([]string{"docker"}, dockerRunArgs(workdir, true, false, nil)...)
			argv = append(argv, l.image(lang), "/bin/sh", "-lc", line)
			p.Run = &Spec{Argv: argv, Dir: workdir}
		} else {
			p.Run = l.shellSpec(workdir, lang, line, false)
		}

	case session.LangCpp:
		p.Compile = l.toolSpec(workdir, lang, "g++", "-O2", entry, "-o", "app")
		p.Run = l.shellSpec(workdir, lang, ptyWrap("./app"+argSuffix(args)), false)

	case session.LangGo:
		p.Compile = l.shellCompileSpec(workdir, lang, "go build -o app "+shQuote(entry))
		p.Run = l.shellSpec(workdir, lang, ptyWrap("./app"+argSuffix(args)), false)

	case session.LangJava:
		mainClass := strings.TrimSuffix(filepath.Base(entry), ".java")
		p.Compile = l.toolSpec(workdir, lang, "javac", entry)
		p.Run = l.shellSpec(workdir, lang, ptyWrap("java -Xrs "+shQuote(mainClass)+argSuffix(args)), false)

	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	if p.Compile != nil {
		p.Compile.describe()
	}
	p.Run.describe()
	return p, nil
}

// shellSpec wraps a shell line for docker or host execution.
func (l *Launcher) shellSpec(workdir, lang, line string, ptrace bool) *Spec {
	if l.UseDocker {
		argv := append([]string{"docker"}, dockerRunArgs(workdir, false, ptrace, nil)...)
		argv = append(argv, l.image(lang), "/bin/sh", "-lc", line)
		return &Spec{Argv: argv, Dir: workdir}
	}
	return &Spec{Argv: []string{"/bin/sh", "-c", line}, Dir: workdir}
}

// toolSpec runs a single tool with plain args, in the container or on the
// host.
func (l *Launcher) toolSpec(workdir, lang string, argv ...string) *Spec {
	if l.UseDocker {
		full := append([]string{"docker"}, dockerRunArgs(workdir, false, false, nil)...)
		full = append(full, l.image(lang))
		full = append(full, argv...)
		return &Spec{Argv: full, Dir: workdir}
	}
	return &Spec{Argv: argv, Dir: workdir}
}

func (l *Launcher) shellCompileSpec(workdir, lang, line string) *Spec {
	if l.UseDocker {
		argv := append([]string{"docker"}, dockerRunArgs(workdir, false, false, nil)...)
		argv = append(argv, l.image(lang), "sh", "-c", line)
		return &Spec{Argv: argv, Dir: workdir}
	}
	return &Spec{Argv: []string{"/bin/sh", "-c", line}, Dir: workdir}
}

func argSuffix(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return " " + shQuoteAll(args)
}

func lookPathAny(names ...string) (string, error) {
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found on PATH", names[0])
}

// RunCompile executes a compile step and returns its stderr (or stdout as a
// fallback) when the step fails. A failed compile is fatal for the session
// and the captured diagnostics are surfaced to the client verbatim.
func RunCompile(ctx context.Context, spec *Spec) error {
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		return &CompileError{Output: msg}
	}
	return nil
}

// Start spawns a spec with piped standard streams and begins waiting on it.
// The pipes are created here rather than via StdinPipe/StdoutPipe because
// Wait runs concurrently with the stream pumps, and Wait closes the pipes
// it manages itself; self-owned *os.File ends keep draining valid until
// real EOF.
func Start(spec *Spec) (*Child, error) {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("spawn %s: %w", spec.Argv[0], err)
	}

	// Child-side ends now belong to the child; readers see EOF once it (and
	// any descendants holding the write ends) exit.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return &Child{Cmd: cmd, Stdin: stdinW, Stdout: stdoutR, Stderr: stderrR, WaitCh: waitCh}, nil
}

var javaPackageRe = regexp.MustCompile(`(?m)^\s*package\s+`)

// PrepareDebug materializes files, compiles when the language requires it,
// and spawns the debug backend eagerly so create-time failures surface as
// HTTP errors. The returned handle is owned by the session until a
// supervisor claims it.
func (l *Launcher) PrepareDebug(ctx context.Context, s *session.Session) (string, *session.DebugHandle, error) {
	if err := l.Available(); err != nil {
		return "", nil, err
	}

	var shimName, shimBody string
	switch s.Lang {
	case session.LangPython:
		shimName, shimBody = PyDebuggerName, PyDebuggerShim
	case session.LangJavaScript:
		shimName, shimBody = JSDebuggerName, JSDebuggerShim
	}

	files := s.Files
	if shimName != "" {
		files = append(append([]session.FileSpec{}, files...), session.FileSpec{Name: shimName, Content: shimBody})
	}

	workdir, err := Materialize("oc-"+s.Lang+"dbg-", files)
	if err != nil {
		return "", nil, err
	}

	handle, err := l.debugHandle(ctx, workdir, s)
	if err != nil {
		Cleanup(workdir)
		return "", nil, err
	}
	return workdir, handle, nil
}

func (l *Launcher) debugHandle(ctx context.Context, workdir string, s *session.Session) (*session.DebugHandle, error) {
	switch s.Lang {
	case session.LangCpp:
		return l.cppDebug(ctx, workdir, s)
	case session.LangJava:
		return l.javaDebug(ctx, workdir, s)
	case session.LangGo:
		return l.goDebug(ctx, workdir, s)
	case session.LangPython:
		return l.shimDebug(ctx, workdir, s, PyDebuggerName, "python")
	case session.LangJavaScript:
		return l.shimDebug(ctx, workdir, s, JSDebuggerName, "node")
	default:
		return nil, fmt.Errorf("unsupported language for debug: %s", s.Lang)
	}
}

func (l *Launcher) cppDebug(ctx context.Context, workdir string, s *session.Session) (*session.DebugHandle, error) {
	sources := filterExt(s.Files, ".cpp")
	if len(sources) == 0 {
		return nil, &RequestError{Msg: "no C++ source files provided (.cpp)"}
	}
	compileArgs := append([]string{"g++", "-g", "-O0"}, sources...)
	compileArgs = append(compileArgs, "-o", "main")
	if err := RunCompile(ctx, l.toolSpec(workdir, session.LangCpp, compileArgs...)); err != nil {
		return nil, &CompileError{Output: "g++ failed: " + err.Error()}
	}

	gdbArgs := []string{
		"gdb", "--interpreter=mi2", "--quiet", "--nx",
		"-iex", "set pagination off",
		"-iex", "set confirm off",
	}

	// Local runs get a dedicated pseudo-terminal for the inferior so program
	// I/O is cleanly separated from MI traffic. Inside a container the pty
	// cannot cross the boundary; MI console streams carry the output there.
	var ptmx, pts *os.File
	if !l.UseDocker {
		var err error
		ptmx, pts, err = pty.Open()
		if err == nil {
			gdbArgs = append(gdbArgs, "-iex", "set inferior-tty "+pts.Name())
		}
	}
	gdbArgs = append(gdbArgs, "--args", "./main")
	gdbArgs = append(gdbArgs, s.Args...)

	var spec *Spec
	if l.UseDocker {
		argv := append([]string{"docker"}, dockerRunArgs(workdir, false, true, nil)...)
		argv = append(argv, l.image(session.LangCpp))
		argv = append(argv, gdbArgs...)
		spec = &Spec{Argv: argv, Dir: workdir}
	} else {
		spec = &Spec{Argv: gdbArgs, Dir: workdir}
	}
	spec.describe()

	handle, err := l.startBackend(spec)
	if err != nil {
		closePty(ptmx, pts)
		return nil, err
	}
	handle.PTY = ptmx
	if pts != nil {
		// The slave side belongs to the inferior; gdb reopens it by name.
		pts.Close()
	}
	if err := probeBackend(handle, time.Second); err != nil {
		closePty(handle.PTY, nil)
		return nil, fmt.Errorf("gdb failed to start: %w", err)
	}
	return handle, nil
}

func (l *Launcher) javaDebug(ctx context.Context, workdir string, s *session.Session) (*session.DebugHandle, error) {
	entryContent := fileContent(s.Files, s.Entry)
	if javaPackageRe.MatchString(head(entryContent, 2048)) {
		return nil, &RequestError{Msg: "Java packages not supported in debug mode"}
	}
	sources := filterExt(s.Files, ".java")
	if len(sources) == 0 {
		return nil, &RequestError{Msg: "no Java source files provided (.java)"}
	}
	compileArgs := append([]string{"javac", "-g"}, sources...)
	if err := RunCompile(ctx, l.toolSpec(workdir, session.LangJava, compileArgs...)); err != nil {
		return nil, &CompileError{Output: "javac failed: " + err.Error()}
	}

	entryClass := strings.TrimSuffix(filepath.Base(s.Entry), ".java")
	root := workdir
	if l.UseDocker {
		root = ContainerWorkdir
	}
	jdbArgs := []string{"jdb", "-sourcepath", root, "-classpath", root, entryClass}
	jdbArgs = append(jdbArgs, s.Args...)

	spec := l.toolSpec(workdir, session.LangJava, jdbArgs...)
	spec.describe()
	handle, err := l.startBackend(spec)
	if err != nil {
		return nil, err
	}
	handle.EntryClass = entryClass
	if err := probeBackend(handle, time.Second); err != nil {
		return nil, fmt.Errorf("jdb failed to start: %w", err)
	}
	return handle, nil
}

func (l *Launcher) goDebug(ctx context.Context, workdir string, s *session.Session) (*session.DebugHandle, error) {
	sources := filterExt(s.Files, ".go")
	if len(sources) == 0 {
		return nil, &RequestError{Msg: "no Go source files provided (.go)"}
	}
	line := `go build -gcflags "all=-N -l" -o app ` + shQuote(s.Entry)
	if err := RunCompile(ctx, l.shellCompileSpec(workdir, session.LangGo, line)); err != nil {
		return nil, &CompileError{Output: "go build failed: " + err.Error()}
	}

	var spec *Spec
	if l.UseDocker {
		argv := append([]string{"docker"}, dockerRunArgs(workdir, false, true, nil)...)
		argv = append(argv, l.image(session.LangGo), "dlv", "exec", "./app")
		spec = &Spec{Argv: argv, Dir: workdir}
	} else {
		dlv, err := exec.LookPath("dlv")
		if err != nil {
			return nil, fmt.Errorf("dlv not found on PATH")
		}
		spec = &Spec{Argv: []string{dlv, "exec", "./app"}, Dir: workdir}
	}
	spec.describe()
	handle, err := l.startBackend(spec)
	if err != nil {
		return nil, err
	}
	handle.BinaryPath = "./app"
	if err := probeBackend(handle, 500*time.Millisecond); err != nil {
		return nil, fmt.Errorf("dlv failed to start: %w", err)
	}
	return handle, nil
}

func (l *Launcher) shimDebug(ctx context.Context, workdir string, s *session.Session, shimName, interpreter string) (*session.DebugHandle, error) {
	bps := encodeBreakpoints(s.Breakpoints)
	env := map[string]string{"OC_INIT_BPS": bps}

	var spec *Spec
	if l.UseDocker {
		if interpreter == "python" {
			env["PYTHONUNBUFFERED"] = "1"
		}
		argv := append([]string{"docker"}, dockerRunArgs(workdir, false, false, env)...)
		argv = append(argv, l.image(s.Lang))
		if interpreter == "python" {
			argv = append(argv, "python", "-u", shimName, s.Entry)
		} else {
			argv = append(argv, "node", shimName, s.Entry)
		}
		argv = append(argv, s.Args...)
		spec = &Spec{Argv: argv, Dir: workdir}
	} else {
		bin, err := lookPathAny(interpreter, interpreter+"3")
		if err != nil {
			return nil, err
		}
		argv := []string{bin}
		if interpreter == "python" {
			argv = append(argv, "-u")
		}
		argv = append(argv, shimName, s.Entry)
		argv = append(argv, s.Args...)
		spec = &Spec{Argv: argv, Dir: workdir, Env: append(os.Environ(), "OC_INIT_BPS="+bps)}
	}
	spec.describe()

	handle, err := l.startBackend(spec)
	if err != nil {
		return nil, err
	}
	if err := probeBackend(handle, time.Second); err != nil {
		return nil, fmt.Errorf("%s debugger failed to start: %w", interpreter, err)
	}
	return handle, nil
}

func (l *Launcher) startBackend(spec *Spec) (*session.DebugHandle, error) {
	child, err := Start(spec)
	if err != nil {
		return nil, err
	}
	return &session.DebugHandle{
		Cmd:    child.Cmd,
		Stdin:  child.Stdin,
		Stdout: child.Stdout,
		Stderr: child.Stderr,
		WaitCh: child.WaitCh,
		Desc:   spec.Desc,
	}, nil
}

// probeBackend gives a freshly spawned backend a short window to die; when
// it does, its output becomes the error so the client sees real
// diagnostics instead of a dead session.
func probeBackend(h *session.DebugHandle, window time.Duration) error {
	select {
	case <-h.WaitCh:
		out, _ := io.ReadAll(io.LimitReader(h.Stderr, 8192))
		if len(strings.TrimSpace(string(out))) == 0 {
			out, _ = io.ReadAll(io.LimitReader(h.Stdout, 8192))
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = "backend exited immediately"
		}
		return fmt.Errorf("%s", msg)
	case <-time.After(window):
		return nil
	}
}

func encodeBreakpoints(bps []session.Breakpoint) string {
	if len(bps) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, bp := range bps {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"file":%q,"line":%d}`, bp.File, bp.Line)
	}
	b.WriteByte(']')
	return b.String()
}

func filterExt(files []session.FileSpec, ext string) []string {
	var out []string
	for _, f := range files {
		if strings.HasSuffix(f.Name, ext) {
			out = append(out, f.Name)
		}
	}
	return out
}

func fileContent(files []session.FileSpec, name string) string {
	for _, f := range files {
		if f.Name == name {
			return f.Content
		}
	}
	return ""
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func closePty(ptmx, pts *os.File) {
	if ptmx != nil {
		ptmx.Close()
	}
	if pts != nil {
		pts.Close()
	}
}
