package debug

import "testing"

func TestJDBPromptDetection(t *testing.T) {
	prompts := []string{">", "main[1]", "Thread-0[2]"}
	for _, p := range prompts {
		if !jdbPromptRe.MatchString(p) {
			t.Errorf("%q should look like a prompt", p)
		}
	}
	notPrompts := []string{"Breakpoint hit: ...", "x = 1", "[1] Main.main (Main.java:4)"}
	for _, p := range notPrompts {
		if jdbPromptRe.MatchString(p) {
			t.Errorf("%q should not look like a prompt", p)
		}
	}
}

func TestJDBPauseMarkerLocation(t *testing.T) {
	line := `Breakpoint hit: "thread=main", Main.main(), line=7 bci=12` + "\n"
	if m := jdbLineRe.FindStringSubmatch(line); m == nil || m[1] != "7" {
		t.Fatalf("line parse failed: %v", m)
	}

	withFile := `Step completed: "thread=main", Main.main(), line=9 bci=15 (Main.java:9)`
	m := jdbLocationRe.FindStringSubmatch(withFile)
	if m == nil || m[1] != "Main.java" || m[2] != "9" {
		t.Fatalf("location parse failed: %v", m)
	}
}

func TestParseJDBStack(t *testing.T) {
	resp := `  [1] Main.helper (Main.java:12)
  [2] Main.main (Main.java:5)`
	frames := parseJDBStack(resp)
	if len(frames) != 2 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].File != "Main.java" || frames[0].Line != 12 || frames[0].Function != "Main.helper" {
		t.Errorf("top frame = %+v", frames[0])
	}
	if frames[1].Function != "Main.main" || frames[1].Line != 5 {
		t.Errorf("bottom frame = %+v", frames[1])
	}
}

func TestParseJDBLocals(t *testing.T) {
	resp := `Method arguments:
args = instance of java.lang.String[0] (id=432)
Local variables:
i = 1
name = "ada"`
	locals := parseJDBLocals(resp)
	if locals["i"] != "1" {
		t.Errorf("i = %q", locals["i"])
	}
	if locals["name"] != `"ada"` {
		t.Errorf("name = %q", locals["name"])
	}
	if locals["args"] == "" {
		t.Error("args missing")
	}
	if _, ok := locals["Local variables:"]; ok {
		t.Error("section header leaked into locals")
	}
}

func TestBreakpointClass(t *testing.T) {
	if got := breakpointClass("/tmp/wd", "Main.java"); got != "Main" {
		t.Errorf("got %q", got)
	}
	if got := breakpointClass("/tmp/wd", "/work/Main.java"); got != "Main" {
		t.Errorf("got %q", got)
	}
}
