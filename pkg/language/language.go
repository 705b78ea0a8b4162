// Package language classifies transcript text as English, Hindi, or
// mixed Hindi-English (Hinglish), with temporal smoothing so a single
// misread utterance does not flip the conversation language.
package language

import (
	"log/slog"
	"strings"
	"unicode"
)

// Language codes produced by the detector.
const (
	English  = "en"
	Hindi    = "hi"
	Hinglish = "hi-en"
)

// Classification thresholds over the fraction of Hindi marker words.
const (
	mixedLow  = 0.3
	mixedHigh = 0.7
)

// majorityThreshold is the history frequency above which the majority
// language overrides the current decision.
const majorityThreshold = 0.7

// hindiMarkers are short high-frequency romanized Hindi words. A text's
// marker fraction drives the Hinglish classification.
var hindiMarkers = map[string]struct{}{
	"hai": {}, "ki": {}, "kya": {}, "aur": {}, "ka": {}, "ko": {},
	"se": {}, "me": {}, "mein": {}, "hain": {}, "par": {}, "ye": {},
	"yeh": {}, "woh": {}, "jo": {}, "na": {}, "ne": {}, "ke": {},
	"hi": {}, "to": {}, "tha": {}, "thi": {}, "ho": {}, "jaa": {},
	"kar": {}, "raha": {}, "rahi": {}, "kuch": {}, "nahi": {},
	"nahin": {}, "apna": {}, "apne": {}, "unka": {}, "unke": {},
	"iska": {}, "iske": {}, "uska": {}, "uske": {},
}

// Config holds detector parameters.
type Config struct {
	// Default is returned for empty or unclassifiable text.
	Default string `yaml:"default"`

	// HistorySize bounds the decision history used for smoothing.
	HistorySize int `yaml:"detection_history_size"`
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		Default:     English,
		HistorySize: 5,
	}
}

// Detector classifies text with a small bounded decision history.
// One detector belongs to one session; it is not goroutine-safe.
type Detector struct {
	cfg     Config
	logger  *slog.Logger
	history []string
}

// New creates a detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	if cfg.Default == "" {
		cfg.Default = English
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Detect classifies text and updates the decision history. The returned
// code is one of English, Hindi, or Hinglish.
func (d *Detector) Detect(text string) string {
	code := Classify(text)
	if code == "" {
		return d.cfg.Default
	}

	d.push(code)
	final := d.smooth(code)
	if final != code {
		d.logger.Debug("language overridden by history",
			"detected", code,
			"final", final,
		)
	}
	return final
}

// History returns a copy of the decision history, oldest first.
func (d *Detector) History() []string {
	out := make([]string, len(d.history))
	copy(out, d.history)
	return out
}

// Reset clears the decision history.
func (d *Detector) Reset() {
	d.history = d.history[:0]
}

func (d *Detector) push(code string) {
	d.history = append(d.history, code)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[1:]
	}
}

// smooth overrides the current decision when the history holds a strong
// majority for a different language.
func (d *Detector) smooth(current string) string {
	if len(d.history) < 3 {
		return current
	}

	counts := make(map[string]int, 3)
	majority := current
	for _, code := range d.history {
		counts[code]++
		if counts[code] > counts[majority] {
			majority = code
		}
	}

	if majority != current &&
		float64(counts[majority])/float64(len(d.history)) > majorityThreshold {
		return majority
	}
	return current
}

// Classify is the pure, stateless classification: it returns the
// language of a single text with no history applied, or "" for text
// with no words.
func Classify(text string) string {
	words := tokenize(text)
	if len(words) == 0 {
		return ""
	}

	if hasDevanagari(text) {
		return Hindi
	}

	var markers int
	for _, w := range words {
		if _, ok := hindiMarkers[w]; ok {
			markers++
		}
	}
	ratio := float64(markers) / float64(len(words))

	switch {
	case ratio > mixedHigh:
		return Hindi
	case ratio >= mixedLow:
		return Hinglish
	default:
		return English
	}
}

// tokenize splits text into lowercase words on non-letter/digit
// boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasDevanagari(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return true
		}
	}
	return false
}
