package debug

import (
	"regexp"
	"strconv"
	"strings"
)

// gdb/MI response parsing. Only the subset this service consumes is
// handled: result records (^done/^running/^error), stream records
// (~ console, @ target, & log), *stopped async records, and the field
// grammar inside them.

var (
	miFrameRe   = regexp.MustCompile(`frame=\{([^}]*)\}`)
	miLocalsRe  = regexp.MustCompile(`\{name="([^"]+)"([^}]*)\}`)
	miValueRe   = regexp.MustCompile(`value="((?:[^"\\]|\\.)*)"`)
	miBreakIDRe = regexp.MustCompile(`number="([^"]+)"`)
)

// miUnquote strips surrounding quotes and unescapes an MI c-string.
func miUnquote(data string) string {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, `"`) && strings.HasSuffix(data, `"`) && len(data) >= 2 {
		data = data[1 : len(data)-1]
	}
	r := strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n", `\t`, "\t", `\r`, "\r")
	return r.Replace(data)
}

// miField extracts key="value" from an MI record segment.
func miField(segment, key string) string {
	re := regexp.MustCompile(regexp.QuoteMeta(key) + `="([^"]+)"`)
	m := re.FindStringSubmatch(segment)
	if m == nil {
		return ""
	}
	return miUnquote(`"` + m[1] + `"`)
}

// miStopFrame pulls the top frame out of a *stopped record. fullname is
// preferred over file because gdb reports it absolute.
func miStopFrame(stopLine string) Frame {
	f := Frame{
		File:     miField(stopLine, "fullname"),
		Function: miField(stopLine, "func"),
	}
	if f.File == "" {
		f.File = miField(stopLine, "file")
	}
	if v := miField(stopLine, "line"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Line = n
		}
	}
	return f
}

// miStackFrames parses a -stack-list-frames response.
func miStackFrames(resp string) []Frame {
	var frames []Frame
	for _, m := range miFrameRe.FindAllStringSubmatch(resp, -1) {
		block := m[1]
		f := Frame{
			File:     miField(block, "fullname"),
			Function: miField(block, "func"),
		}
		if f.File == "" {
			f.File = miField(block, "file")
		}
		if v := miField(block, "line"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				f.Line = n
			}
		}
		frames = append(frames, f)
	}
	return frames
}

// miLocals parses a -stack-list-variables --all-values response into a
// name -> stringified value map.
func miLocals(resp string) map[string]string {
	locals := make(map[string]string)
	for _, m := range miLocalsRe.FindAllStringSubmatch(resp, -1) {
		name := miUnquote(`"` + m[1] + `"`)
		val := ""
		if vm := miValueRe.FindStringSubmatch(m[2]); vm != nil {
			val = miUnquote(`"` + vm[1] + `"`)
		}
		locals[name] = val
	}
	return locals
}

// miBreakID extracts the breakpoint number from a ^done,bkpt={number="1",…}
// response to -break-insert.
func miBreakID(resp string) string {
	m := miBreakIDRe.FindStringSubmatch(resp)
	if m == nil {
		return ""
	}
	return m[1]
}

// miValue extracts value="…" from a -data-evaluate-expression response.
func miValue(resp string) (string, bool) {
	m := miValueRe.FindStringSubmatch(resp)
	if m == nil {
		return "", false
	}
	return miUnquote(`"` + m[1] + `"`), true
}
