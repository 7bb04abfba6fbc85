package predict

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func writePredictor(t *testing.T, dir, lang, script string) {
	t.Helper()
	path := filepath.Join(dir, "predict_"+lang)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestPredictParsesLineMarkers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("predictor scripts are POSIX executables")
	}
	dir := t.TempDir()
	writePredictor(t, dir, "python", "#!/bin/sh\necho 'line 7'\necho '  - line 3'\necho 'noise'\necho '* line 7'\n")

	p := &Predictor{Dir: dir}
	lines, err := p.Predict(context.Background(), "python", "m.py", "print(1)\n")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !reflect.DeepEqual(lines, []int{3, 7}) {
		t.Errorf("lines = %v, want [3 7]", lines)
	}
}

func TestPredictMissingScript(t *testing.T) {
	p := &Predictor{Dir: t.TempDir()}
	if _, err := p.Predict(context.Background(), "go", "m.go", "package main"); err == nil {
		t.Fatal("expected error for missing predictor")
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	writePredictor(t, dir, "python", "#!/bin/sh\necho 'line 1'\n")
	p := &Predictor{Dir: dir}

	if _, err := p.Predict(context.Background(), "python", "../m.py", "x"); err == nil {
		t.Error("unsafe name accepted")
	}
	if _, err := p.Predict(context.Background(), "brainfuck", "m.bf", "x"); err == nil {
		t.Error("unsupported language accepted")
	}
	big := make([]byte, 300_000)
	if _, err := p.Predict(context.Background(), "python", "m.py", string(big)); err == nil {
		t.Error("oversized file accepted")
	}
}

func TestPredictSurfacesScriptFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("predictor scripts are POSIX executables")
	}
	dir := t.TempDir()
	writePredictor(t, dir, "python", "#!/bin/sh\necho 'model not loaded' >&2\nexit 3\n")

	p := &Predictor{Dir: dir}
	_, err := p.Predict(context.Background(), "python", "m.py", "x")
	if err == nil || err.Error() != "model not loaded" {
		t.Fatalf("err = %v", err)
	}
}

func TestParseLines(t *testing.T) {
	out := parseLines("Line 2\nline 2\n• line 10\nline abc\nline 0\n")
	if !reflect.DeepEqual(out, []int{2, 10}) {
		t.Errorf("out = %v", out)
	}
}

func TestEnabled(t *testing.T) {
	var nilP *Predictor
	if nilP.Enabled() {
		t.Error("nil predictor enabled")
	}
	if (&Predictor{}).Enabled() {
		t.Error("empty dir enabled")
	}
	if !(&Predictor{Dir: "/x"}).Enabled() {
		t.Error("configured predictor disabled")
	}
}
