package stream

import (
	"strings"
	"testing"
)

func collect(sc *SentinelScanner, chunks ...string) (text string, sentinels int) {
	for _, c := range chunks {
		for _, p := range sc.Feed([]byte(c)) {
			if p.Sentinel {
				sentinels++
			} else {
				text += p.Text
			}
		}
	}
	text += sc.Flush()
	return text, sentinels
}

func TestScannerPlainText(t *testing.T) {
	var sc SentinelScanner
	text, sentinels := collect(&sc, "hello\n", "world")
	if text != "hello\nworld" {
		t.Errorf("text = %q", text)
	}
	if sentinels != 0 {
		t.Errorf("sentinels = %d, want 0", sentinels)
	}
}

func TestScannerWholeSentinel(t *testing.T) {
	var sc SentinelScanner
	text, sentinels := collect(&sc, "? "+Sentinel+"after")
	if text != "? after" {
		t.Errorf("text = %q", text)
	}
	if sentinels != 1 {
		t.Errorf("sentinels = %d, want 1", sentinels)
	}
}

// For any partition of the stream into chunks, the emitted text and the
// sentinel count must be invariant.
func TestScannerChunkBoundaryInvariance(t *testing.T) {
	payload := "a" + Sentinel + "bb" + Sentinel + Sentinel + "ccc<<<OC_tail"
	wantText := "abbccc<<<OC_tail"
	wantSentinels := 3

	for size := 1; size <= len(payload); size++ {
		var sc SentinelScanner
		var chunks []string
		for i := 0; i < len(payload); i += size {
			end := i + size
			if end > len(payload) {
				end = len(payload)
			}
			chunks = append(chunks, payload[i:end])
		}
		text, sentinels := collect(&sc, chunks...)
		if text != wantText {
			t.Fatalf("chunk size %d: text = %q, want %q", size, text, wantText)
		}
		if sentinels != wantSentinels {
			t.Fatalf("chunk size %d: sentinels = %d, want %d", size, sentinels, wantSentinels)
		}
	}
}

func TestScannerCarryIsOnlySentinelPrefix(t *testing.T) {
	var sc SentinelScanner
	pieces := sc.Feed([]byte("data<<<OC_AW"))
	var text string
	for _, p := range pieces {
		text += p.Text
	}
	if text != "data" {
		t.Errorf("emitted %q before partial sentinel, want %q", text, "data")
	}
	if rest := sc.Flush(); rest != "<<<OC_AW" {
		t.Errorf("flush = %q", rest)
	}
}

func TestScannerFalsePrefixReleased(t *testing.T) {
	var sc SentinelScanner
	text, sentinels := collect(&sc, "x<<<", "not a sentinel")
	if sentinels != 0 {
		t.Fatalf("sentinels = %d", sentinels)
	}
	if text != "x<<<not a sentinel" {
		t.Errorf("text = %q", text)
	}
}

func TestLongestSentinelPrefixSuffix(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"<", 1},
		{"abc<<<OC_AWAIT>", len("<<<OC_AWAIT>")},
		{Sentinel[:len(Sentinel)-1], len(Sentinel) - 1},
		{"<<<X", 0},
	}
	for _, c := range cases {
		if got := longestSentinelPrefixSuffix(c.in); got != c.want {
			t.Errorf("longestSentinelPrefixSuffix(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSentinelLengthIsStable(t *testing.T) {
	// The wire contract reserves exactly these bytes.
	if Sentinel != "<<<OC_AWAIT>>>" {
		t.Fatalf("sentinel changed: %q", Sentinel)
	}
	if strings.Contains(Sentinel, "\n") {
		t.Fatal("sentinel must not contain newlines")
	}
}
