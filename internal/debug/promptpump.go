package debug

import (
	"io"
	"strings"
)

// pumpPromptLines reads a backend's stdout where responses are delimited by
// a prompt that is not newline-terminated (jdb's "main[1] ", delve's
// "(dlv) "). Complete lines are delivered with prompt=false; when the
// unterminated tail of the buffer matches the prompt predicate it is
// delivered with prompt=true and discarded. onEOF fires once the stream
// closes.
func pumpPromptLines(r io.Reader, isPrompt func(string) bool, onLine func(line string, prompt bool), onEOF func()) {
	buf := make([]byte, 4096)
	var partial string
	for {
		n, err := r.Read(buf)
		if n > 0 {
			partial += string(buf[:n])
			for {
				idx := strings.IndexByte(partial, '\n')
				if idx < 0 {
					break
				}
				line := strings.TrimRight(partial[:idx], "\r")
				partial = partial[idx+1:]
				if strings.TrimSpace(line) != "" {
					onLine(line, false)
				}
			}
			if tail := strings.TrimSpace(partial); tail != "" && isPrompt(tail) {
				onLine(tail, true)
				partial = ""
			}
		}
		if err != nil {
			if tail := strings.TrimSpace(partial); tail != "" {
				onLine(tail, isPrompt(tail))
			}
			onEOF()
			return
		}
	}
}
