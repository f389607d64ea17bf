package generation

import (
	"strings"
	"time"

	"chatd/internal/engine"
)

// Defaults for sampling and budget when a Request leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultTopK        = 40
	DefaultTopP        = 0.9
	DefaultMaxTokens   = 512
)

// Params are sampling parameters. They are opaque to the loop and handed to
// the engine as-is.
type Params struct {
	Temperature float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP        float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	Seed        int     `json:"seed,omitempty" yaml:"seed" toml:"seed"`
}

// DefaultParams returns temperature 0.7, top-k 40, top-p 0.9.
func DefaultParams() Params {
	return Params{Temperature: DefaultTemperature, TopK: DefaultTopK, TopP: DefaultTopP}
}

func (p Params) engine() engine.SampleParams {
	return engine.SampleParams{Temperature: p.Temperature, TopK: p.TopK, TopP: p.TopP, Seed: p.Seed}
}

// StopFunc inspects the cumulative generated text. When it reports ok, at is
// the byte offset where the output must end.
type StopFunc func(text string) (at int, ok bool)

// HoldFunc reports how many trailing bytes of text must stay unemitted
// because they could still grow into a stop match.
type HoldFunc func(text string) int

// StopSequences returns a StopFunc that matches the earliest occurrence of any
// sequence, and a HoldFunc that holds back the longest suffix of the output
// that is a proper prefix of a sequence, so a sequence split across tokens is
// never partially emitted.
func StopSequences(seqs ...string) (StopFunc, HoldFunc) {
	var kept []string
	for _, s := range seqs {
		if s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	stop := func(text string) (int, bool) {
		earliest := -1
		for _, s := range kept {
			if idx := strings.Index(text, s); idx >= 0 && (earliest < 0 || idx < earliest) {
				earliest = idx
			}
		}
		return earliest, earliest >= 0
	}
	hold := func(text string) int {
		n := 0
		for _, s := range kept {
			for k := min(len(s)-1, len(text)); k > n; k-- {
				if strings.HasSuffix(text, s[:k]) {
					n = k
					break
				}
			}
		}
		return n
	}
	return stop, hold
}

// Request describes one generation.
type Request struct {
	Prompt string
	Params Params
	// Stop is applied to the cumulative output after every piece.
	Stop StopFunc
	// Holdback, when set, names the trailing bytes that stay unemitted until
	// more output arrives or generation ends. See StopSequences.
	Holdback HoldFunc
	// MaxTokens bounds the cache cursor (prompt plus generated tokens). Zero
	// uses the Runner's budget.
	MaxTokens int
}

// Reason is the terminal outcome of a session.
type Reason string

const (
	ReasonStop      Reason = "stop"
	ReasonLength    Reason = "length"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Result summarizes a finished session.
type Result struct {
	Reason       Reason
	Text         string
	PromptTokens int
	Decoded      int
	Elapsed      time.Duration
}

// TokensPerSecond is Decoded/Elapsed; zero when either is zero.
func (r Result) TokensPerSecond() float64 { return TokensPerSecond(r.Decoded, r.Elapsed) }

// TokensPerSecond guards the throughput division.
func TokensPerSecond(decoded int, elapsed time.Duration) float64 {
	if decoded <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(decoded) / elapsed.Seconds()
}
