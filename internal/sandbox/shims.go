package sandbox

import _ "embed"

// Debugger shims copied into debug workdirs. Both speak the same protocol:
// one JSON command per line on stdin, one JSON event per line on stdout.

// PyDebuggerName is the filename of the python debugger shim.
const PyDebuggerName = "oc_py_debugger.py"

// JSDebuggerName is the filename of the JavaScript debugger shim.
const JSDebuggerName = "oc_js_debugger.js"

//go:embed shims/oc_py_debugger.py
var PyDebuggerShim string

//go:embed shims/oc_js_debugger.js
var JSDebuggerShim string
