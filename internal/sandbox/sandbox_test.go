package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

func TestMaterializeRejectsUnsafeNames(t *testing.T) {
	_, err := Materialize("oc-test-", []session.FileSpec{
		{Name: "../etc/passwd", Content: "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filename")
}

func TestMaterializeNormalizesNewlines(t *testing.T) {
	workdir, err := Materialize("oc-test-", []session.FileSpec{
		{Name: "m.py", Content: "a\r\nb\rc\n"},
	})
	require.NoError(t, err)
	defer Cleanup(workdir)

	data, err := os.ReadFile(filepath.Join(workdir, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))
}

func TestCleanupRemovesWorkdir(t *testing.T) {
	workdir, err := Materialize("oc-test-", []session.FileSpec{{Name: "a", Content: "1"}})
	require.NoError(t, err)
	Cleanup(workdir)
	_, statErr := os.Stat(workdir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDockerRunArgsProperties(t *testing.T) {
	args := dockerRunArgs("/tmp/wd", true, false, nil)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "--network none")
	assert.Contains(t, joined, "--cpus 1")
	assert.Contains(t, joined, "--memory 512m")
	assert.Contains(t, joined, "--pids-limit 256")
	assert.Contains(t, joined, "/tmp/wd:/work:ro")
	assert.NotContains(t, joined, "SYS_PTRACE")

	ptraced := strings.Join(dockerRunArgs("/tmp/wd", false, true, nil), " ")
	assert.Contains(t, ptraced, "--cap-add=SYS_PTRACE")
	assert.Contains(t, ptraced, "seccomp=unconfined")
	assert.Contains(t, ptraced, "/tmp/wd:/work:rw")
}

func TestPythonRunSpecUsesBootstrap(t *testing.T) {
	l := &Launcher{UseDocker: true, ImagePrefix: "omni-runner"}
	workdir := t.TempDir()

	p, err := l.runSpecs(workdir, session.LangPython, "m.py", []string{"one", "two words"})
	require.NoError(t, err)
	require.Nil(t, p.Compile)

	joined := strings.Join(p.Run.Argv, " ")
	assert.Contains(t, joined, "omni-runner:python")
	assert.Contains(t, joined, "python -u "+bootstrapName)
	assert.Contains(t, joined, ":/work:ro")

	body, err := os.ReadFile(filepath.Join(workdir, bootstrapName))
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "<<<OC_AWAIT>>>")
	assert.Contains(t, text, `["one","two words"]`)
	assert.Contains(t, text, `"m.py"`)
	assert.Contains(t, text, "run_name='__main__'")
}

func TestCompiledRunSpecsHaveCompileStep(t *testing.T) {
	l := &Launcher{UseDocker: true, ImagePrefix: "omni-runner"}

	for lang, fragment := range map[string]string{
		session.LangCpp:  "g++",
		session.LangGo:   "go build",
		session.LangJava: "javac",
	} {
		entry := map[string]string{
			session.LangCpp:  "main.cpp",
			session.LangGo:   "m.go",
			session.LangJava: "Main.java",
		}[lang]

		p, err := l.runSpecs(t.TempDir(), lang, entry, nil)
		require.NoError(t, err, lang)
		require.NotNil(t, p.Compile, lang)
		assert.Contains(t, strings.Join(p.Compile.Argv, " "), fragment, lang)
		// Compiled output must be writable next to the sources.
		assert.Contains(t, strings.Join(p.Compile.Argv, " "), ":/work:rw", lang)
	}
}

func TestRunSpecWrapsInteractiveIO(t *testing.T) {
	l := &Launcher{UseDocker: true, ImagePrefix: "omni-runner"}
	p, err := l.runSpecs(t.TempDir(), session.LangJavaScript, "app.js", nil)
	require.NoError(t, err)

	shellLine := p.Run.Argv[len(p.Run.Argv)-1]
	assert.Contains(t, shellLine, "script -qefc")
	assert.Contains(t, shellLine, "stty -echo")
	assert.Contains(t, shellLine, "stdbuf -oL -eL")
}

func TestRunSpecsUnsupportedLanguage(t *testing.T) {
	l := &Launcher{UseDocker: true, ImagePrefix: "omni-runner"}
	_, err := l.runSpecs(t.TempDir(), "fortran", "m.f90", nil)
	require.Error(t, err)
}

func TestShQuote(t *testing.T) {
	assert.Equal(t, "plain-arg_1.txt", shQuote("plain-arg_1.txt"))
	assert.Equal(t, "''", shQuote(""))
	assert.Equal(t, "'two words'", shQuote("two words"))
	assert.Equal(t, `'it'\''s'`, shQuote("it's"))
}

func TestEncodeBreakpoints(t *testing.T) {
	assert.Equal(t, "[]", encodeBreakpoints(nil))
	got := encodeBreakpoints([]session.Breakpoint{{File: "m.py", Line: 3}, {File: "u.py", Line: 9}})
	assert.Equal(t, `[{"file":"m.py","line":3},{"file":"u.py","line":9}]`, got)
}

func TestJavaPackageRejected(t *testing.T) {
	assert.True(t, javaPackageRe.MatchString("package com.example;\npublic class Main {}"))
	assert.True(t, javaPackageRe.MatchString("// header\n  package x;\n"))
	assert.False(t, javaPackageRe.MatchString("public class Main { /* package */ }"))
}

func TestShimAssetsEmbedded(t *testing.T) {
	assert.Contains(t, PyDebuggerShim, "set_breakpoints")
	assert.Contains(t, PyDebuggerShim, "OC_INIT_BPS")
	assert.Contains(t, JSDebuggerShim, "set_breakpoints")
	assert.Contains(t, JSDebuggerShim, "OC_INIT_BPS")
}
