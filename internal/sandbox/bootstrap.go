package sandbox

import (
	"encoding/json"
	"fmt"
)

// bootstrapName is the synthesized python wrapper written into run-mode
// workdirs.
const bootstrapName = "_oc_bootstrap.py"

// pythonBootstrap renders the run-mode wrapper: it forces write-through
// stdout/stderr, emits the prompt sentinel before each blocking input(),
// installs the program-visible argv and executes the user entry as
// __main__. JSON literals for the entry name and argv are valid python
// literals, so the values are injected with encoding/json.
func pythonBootstrap(entry string, args []string) string {
	entryLit, _ := json.Marshal(entry)
	if args == nil {
		args = []string{}
	}
	argsLit, _ := json.Marshal(args)

	return fmt.Sprintf(`import sys, runpy, builtins

try:
    sys.stdout.reconfigure(write_through=True)
    sys.stderr.reconfigure(write_through=True)
except Exception:
    pass

_orig_input = builtins.input
def _oc_input(prompt=''):
    sys.stdout.write(str(prompt))
    sys.stdout.flush()
    sys.stdout.write('<<<OC_AWAIT>>>')
    sys.stdout.flush()
    return _orig_input()

builtins.input = _oc_input

sys.argv = [%s] + %s

runpy.run_path(%s, run_name='__main__')
`, entryLit, argsLit, entryLit)
}
