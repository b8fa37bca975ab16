package obfuscate

import (
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultProbability is the per-character chance of injecting a mark.
const DefaultProbability = 0.10

// Source supplies independent uniform draws in [0,1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// Result summarises one pass. Lengths count characters (runes); every mark is
// one rune, so OutputLength == OriginalLength + Inserted.
type Result struct {
	Output         string `json:"output"`
	Inserted       int    `json:"inserted"`
	OriginalLength int    `json:"original_length"`
	OutputLength   int    `json:"output_length"`
}

// Engine injects invisible marks after characters of a text.
// An Engine is not safe for concurrent use unless its Source is.
type Engine struct {
	src         Source
	probability float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithProbability overrides DefaultProbability. Values are clamped to [0,1].
func WithProbability(p float64) Option {
	return func(e *Engine) {
		switch {
		case p < 0:
			p = 0
		case p > 1:
			p = 1
		}
		e.probability = p
	}
}

// NewEngine builds an engine drawing from src. A nil src gets a time-seeded
// PCG generator.
func NewEngine(src Source, opts ...Option) *Engine {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	e := &Engine{src: src, probability: DefaultProbability}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSeededEngine returns an engine whose output is reproducible for a seed.
func NewSeededEngine(seed uint64, opts ...Option) *Engine {
	return NewEngine(rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)), opts...)
}

// Probability returns the injection probability in use.
func (e *Engine) Probability() float64 { return e.probability }

// Obfuscate makes one left-to-right pass over text. For each character it
// draws once; below the probability it appends a mark chosen with a second
// draw. Original bytes are copied unchanged, including invalid UTF-8.
func (e *Engine) Obfuscate(text string, mode Mode) Result {
	marks := alphabet(mode)
	var sb strings.Builder
	sb.Grow(len(text) + len(text)/4)

	var chars, inserted int
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		sb.WriteString(text[i : i+size])
		i += size
		chars++
		if e.src.Float64() < e.probability {
			sb.WriteRune(marks[pick(e.src.Float64(), len(marks))])
			inserted++
		}
	}
	return Result{
		Output:         sb.String(),
		Inserted:       inserted,
		OriginalLength: chars,
		OutputLength:   chars + inserted,
	}
}

func pick(draw float64, n int) int {
	i := int(draw * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

var stripper = runes.Remove(runes.Predicate(IsMark))

// Strip removes every mark of both alphabets from valid UTF-8 text.
func Strip(text string) string {
	out, _, err := transform.String(stripper, text)
	if err != nil {
		// transform only fails on short buffers, which String handles itself
		return text
	}
	return out
}

// CountMarks counts runes of mode's alphabet in text.
func CountMarks(text string, mode Mode) int {
	in := isStandardMark
	if mode == Premium {
		in = isPremiumMark
	}
	n := 0
	for _, r := range text {
		if in(r) {
			n++
		}
	}
	return n
}
