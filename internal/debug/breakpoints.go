package debug

import (
	"fmt"
	"path"
	"strings"
)

// containerWorkdir mirrors the sandbox mount point; breakpoint paths may
// arrive in either absolute (/work/m.py) or workdir-relative (m.py) form.
const containerWorkdir = "/work"

// CanonicalPath maps a user-supplied breakpoint path to its canonical
// workdir-relative form so both spellings resolve to the same registry key.
func CanonicalPath(workdir, file string) string {
	if file == "" {
		return file
	}
	f := path.Clean(strings.ReplaceAll(file, "\\", "/"))
	for _, root := range []string{containerWorkdir, workdir} {
		if root == "" {
			continue
		}
		root = strings.TrimSuffix(root, "/")
		if f == root {
			return "."
		}
		if strings.HasPrefix(f, root+"/") {
			return f[len(root)+1:]
		}
	}
	return strings.TrimPrefix(f, "/")
}

// breakpointRegistry maps canonical (file, line) keys to backend-assigned
// ids. It is mutated only by the supervisor's command loop, so no locking
// is needed.
type breakpointRegistry struct {
	workdir string
	ids     map[string]string
}

func newBreakpointRegistry(workdir string) *breakpointRegistry {
	return &breakpointRegistry{workdir: workdir, ids: make(map[string]string)}
}

func (r *breakpointRegistry) key(file string, line int) string {
	return fmt.Sprintf("%s:%d", CanonicalPath(r.workdir, file), line)
}

func (r *breakpointRegistry) put(file string, line int, id string) {
	r.ids[r.key(file, line)] = id
}

func (r *breakpointRegistry) lookup(file string, line int) (string, bool) {
	id, ok := r.ids[r.key(file, line)]
	return id, ok
}

func (r *breakpointRegistry) remove(file string, line int) {
	delete(r.ids, r.key(file, line))
}

// removeByID drops every entry carrying the given backend id.
func (r *breakpointRegistry) removeByID(id string) {
	for k, v := range r.ids {
		if v == id {
			delete(r.ids, k)
		}
	}
}

func (r *breakpointRegistry) empty() bool {
	return len(r.ids) == 0
}

// locations returns the registry contents as (canonical file, line) pairs.
func (r *breakpointRegistry) locations() []string {
	out := make([]string, 0, len(r.ids))
	for k := range r.ids {
		out = append(out, k)
	}
	return out
}
