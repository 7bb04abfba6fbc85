package debug

import (
	"reflect"
	"testing"
)

func TestMIUnquote(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"hello"`, "hello"},
		{`"line\n"`, "line\n"},
		{`"tab\there"`, "tab\there"},
		{`"a \"quoted\" word"`, `a "quoted" word`},
		{`"back\\slash"`, `back\slash`},
		{`bare`, "bare"},
	}
	for _, c := range cases {
		if got := miUnquote(c.in); got != c.want {
			t.Errorf("miUnquote(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMIStopFrame(t *testing.T) {
	line := `*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x0000555555555151",func="main",args=[],file="main.cpp",fullname="/work/main.cpp",line="5",arch="i386:x86-64"},thread-id="1",stopped-threads="all"`
	f := miStopFrame(line)
	if f.File != "/work/main.cpp" {
		t.Errorf("file = %q", f.File)
	}
	if f.Line != 5 {
		t.Errorf("line = %d", f.Line)
	}
	if f.Function != "main" {
		t.Errorf("func = %q", f.Function)
	}
}

func TestMIStackFrames(t *testing.T) {
	resp := `^done,stack=[frame={level="0",addr="0x1",func="inner",file="main.cpp",fullname="/work/main.cpp",line="3"},frame={level="1",addr="0x2",func="main",file="main.cpp",fullname="/work/main.cpp",line="9"}]`
	frames := miStackFrames(resp)
	want := []Frame{
		{File: "/work/main.cpp", Line: 3, Function: "inner"},
		{File: "/work/main.cpp", Line: 9, Function: "main"},
	}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %+v, want %+v", frames, want)
	}
}

func TestMILocals(t *testing.T) {
	resp := `^done,variables=[{name="i",value="1"},{name="msg",value="\"hi\""},{name="empty"}]`
	locals := miLocals(resp)
	if locals["i"] != "1" {
		t.Errorf("i = %q", locals["i"])
	}
	if locals["msg"] != `"hi"` {
		t.Errorf("msg = %q", locals["msg"])
	}
	if v, ok := locals["empty"]; !ok || v != "" {
		t.Errorf("empty = %q, ok=%v", v, ok)
	}
}

func TestMIBreakID(t *testing.T) {
	resp := `^done,bkpt={number="2",type="breakpoint",disp="keep",enabled="y",addr="0x1151",func="main",file="main.cpp",fullname="/work/main.cpp",line="5",times="0"}`
	if id := miBreakID(resp); id != "2" {
		t.Errorf("id = %q, want 2", id)
	}
	if id := miBreakID(`^error,msg="No line 99"`); id != "" {
		t.Errorf("id = %q, want empty", id)
	}
}

func TestMIValue(t *testing.T) {
	v, ok := miValue(`^done,value="42"`)
	if !ok || v != "42" {
		t.Errorf("value = %q ok=%v", v, ok)
	}
	if _, ok := miValue(`^error,msg="no symbol"`); ok {
		t.Error("unexpected value in error response")
	}
}
