// Package session defines the session record shared by the HTTP layer and
// the supervisor, plus the in-memory registry that owns session ids.
package session

import (
	"io"
	"os"
	"os/exec"
	"regexp"
	"time"
)

// Language identifiers accepted by the service.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangCpp        = "cpp"
	LangJava       = "java"
	LangGo         = "go"
)

// Session modes.
const (
	ModeRun   = "run"
	ModeDebug = "debug"
)

// Session states.
const (
	StateNew        = "new"
	StateDebugReady = "debug-ready"
	StateRunning    = "running"
	StateStopping   = "stopping"
	StateClosed     = "closed"
)

// SafeName matches filenames the API accepts: no path separators, no spaces.
var SafeName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Limits on uploaded source trees.
const (
	MaxFiles        = 50
	MaxBytesPerFile = 200_000
)

// AllowedLangs is the supported language set.
var AllowedLangs = map[string]bool{
	LangPython:     true,
	LangJavaScript: true,
	LangCpp:        true,
	LangJava:       true,
	LangGo:         true,
}

// FileSpec is one uploaded source file.
type FileSpec struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Breakpoint is a (file, line) location.
type Breakpoint struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// DebugHandle holds the resources of an eagerly spawned debug backend. The
// supervisor takes exclusive ownership of it at attach time.
type DebugHandle struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	// WaitCh receives the result of Cmd.Wait exactly once.
	WaitCh <-chan error

	// PTY is the master side of the inferior tty when the launcher could
	// allocate one (local gdb), nil otherwise.
	PTY *os.File

	// EntryClass is the main class for jdb sessions.
	EntryClass string

	// BinaryPath is the debug-built binary for delve sessions.
	BinaryPath string

	// Desc is a human-friendly command line for diagnostics.
	Desc string
}

// Session is the unit of isolation binding one child process, one workdir
// and one duplex stream.
type Session struct {
	ID          string
	Lang        string
	Entry       string
	Args        []string
	Files       []FileSpec
	Mode        string
	Breakpoints []Breakpoint
	State       string
	CreatedAt   time.Time

	// Workdir is owned by the session and removed on close. Empty until
	// materialized (run mode materializes at attach, debug at create).
	Workdir string

	// Debug is set for debug sessions whose backend was spawned at create.
	Debug *DebugHandle
}
