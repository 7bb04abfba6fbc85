// Package predict runs the per-language breakpoint predictor as a
// subprocess over a materialized source file and parses its suggested
// lines. The predictor itself is an external collaborator; only the
// invocation and output contract live here.
package predict

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// linePattern matches "line N" markers in predictor output, with optional
// bullets.
var linePattern = regexp.MustCompile(`(?i)^\s*[•*-]?\s*line\s+(\d+)\b`)

// Predictor invokes predictor executables from a configured directory,
// named predict_<lang>.
type Predictor struct {
	Dir string
}

// Enabled reports whether a predictor directory is configured.
func (p *Predictor) Enabled() bool {
	return p != nil && p.Dir != ""
}

func (p *Predictor) script(lang string) (string, error) {
	path := filepath.Join(p.Dir, "predict_"+lang)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no predictor available for %s", lang)
	}
	return path, nil
}

// Predict writes the source to a scratch file, runs the language's
// predictor over it and returns the suggested lines, sorted and deduped.
func (p *Predictor) Predict(ctx context.Context, lang, name, content string) ([]int, error) {
	if !session.AllowedLangs[lang] {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	if !session.SafeName.MatchString(name) {
		return nil, fmt.Errorf("invalid filename: %s", name)
	}
	if len(content) > session.MaxBytesPerFile {
		return nil, fmt.Errorf("file too large: %s", name)
	}

	script, err := p.script(lang)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "oc-predict-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	source := filepath.Join(dir, name)
	if err := os.WriteFile(source, []byte(content), 0o644); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, script, source)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = "predictor failed"
		}
		return nil, fmt.Errorf("%s", detail)
	}

	return parseLines(stdout.String()), nil
}

func parseLines(raw string) []int {
	seen := make(map[int]bool)
	var lines []int
	for _, l := range strings.Split(raw, "\n") {
		m := linePattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}
