package stream

import (
	"io"
	"strings"
)

// Kind labels a frame's originating stream.
const (
	KindOut = "out"
	KindErr = "err"
)

// Emitter receives frames and awaiting-input transitions from a pump.
// Implementations route to the duplex stream; Await goes through the
// session's input gate so edges strictly alternate.
type Emitter interface {
	Data(kind, data string)
	Await(v bool)
}

// Pump reads a child stream in chunks until EOF and forwards it through the
// emitter. Stdout is sentinel-scanned and prompt-detected; stderr passes
// through verbatim. Residual carry is flushed as a final frame.
func Pump(r io.Reader, kind string, e Emitter) {
	buf := make([]byte, ChunkSize)

	if kind != KindOut {
		for {
			n, err := r.Read(buf)
			if n > 0 {
				e.Data(kind, string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}

	var sc SentinelScanner
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, p := range sc.Feed(buf[:n]) {
				if p.Sentinel {
					e.Await(true)
					continue
				}
				e.Data(kind, p.Text)
				// A stdout chunk without a trailing newline is likely a
				// prompt waiting on stdin.
				if !strings.HasSuffix(p.Text, "\n") {
					e.Await(true)
				}
			}
		}
		if err != nil {
			if rest := sc.Flush(); rest != "" {
				e.Data(kind, rest)
			}
			return
		}
	}
}
