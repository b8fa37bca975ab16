package obfuscate_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

// seqSource replays draws in order and repeats the last one.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.i]
	if s.i < len(s.vals)-1 {
		s.i++
	}
	return v
}

func TestObfuscateEveryCharacterWhenDrawBelowProbability(t *testing.T) {
	e := obfuscate.NewEngine(constSource(0.05))
	res := e.Obfuscate("hello world", obfuscate.Standard)

	assert.Equal(t, 11, res.Inserted)
	assert.Equal(t, 11, res.OriginalLength)
	assert.Equal(t, 22, res.OutputLength)
	assert.Equal(t, 22, utf8.RuneCountInString(res.Output))

	// floor(0.05*8) == 0 picks the zero width space every time
	want := strings.Join(strings.Split("hello world", ""), "\u200B") + "\u200B"
	assert.Equal(t, want, res.Output)
}

func TestObfuscateEmpty(t *testing.T) {
	for _, m := range []obfuscate.Mode{obfuscate.Standard, obfuscate.Premium} {
		res := obfuscate.NewEngine(constSource(0)).Obfuscate("", m)
		assert.Equal(t, obfuscate.Result{}, res, m.String())
	}
}

func TestObfuscateNoDrawBelowProbabilityIsIdentity(t *testing.T) {
	in := "Ünïcode ✓ text\nwith lines"
	res := obfuscate.NewEngine(constSource(0.5)).Obfuscate(in, obfuscate.Standard)
	assert.Equal(t, in, res.Output)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, utf8.RuneCountInString(in), res.OutputLength)
}

func TestObfuscateMarkFollowsTrigger(t *testing.T) {
	// draw pairs: (inject?, which mark); only the second character is hit
	src := &seqSource{vals: []float64{0.9, 0.01, 0.99, 0.9, 0.9}}
	res := obfuscate.NewEngine(src).Obfuscate("abc", obfuscate.Standard)
	assert.Equal(t, "ab\u2064c", res.Output)
	assert.Equal(t, 1, res.Inserted)
}

func TestObfuscatePremiumAlphabet(t *testing.T) {
	e := obfuscate.NewEngine(constSource(0.05))
	res := e.Obfuscate("abc", obfuscate.Premium)
	require.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, obfuscate.CountMarks(res.Output, obfuscate.Premium))
	assert.Zero(t, obfuscate.CountMarks(res.Output, obfuscate.Standard))
	assert.Greater(t, len(obfuscate.Alphabet(obfuscate.Premium)), len(obfuscate.Alphabet(obfuscate.Standard)))
}

func TestObfuscateLengthAndStripRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"The quick brown fox jumps over the lazy dog.",
		"日本語のテキストと emoji 🎉 mixed",
		strings.Repeat("lorem ipsum ", 200),
	}
	for seed := uint64(1); seed <= 5; seed++ {
		e := obfuscate.NewSeededEngine(seed, obfuscate.WithProbability(0.3))
		for _, in := range inputs {
			for _, m := range []obfuscate.Mode{obfuscate.Standard, obfuscate.Premium} {
				res := e.Obfuscate(in, m)
				assert.Equal(t, utf8.RuneCountInString(in)+res.Inserted, res.OutputLength)
				assert.Equal(t, utf8.RuneCountInString(res.Output), res.OutputLength)
				assert.Equal(t, res.Inserted, obfuscate.CountMarks(res.Output, m))
				assert.Equal(t, in, obfuscate.Strip(res.Output))
				assertNoLeadingOrAdjacentMarks(t, res.Output)
			}
		}
	}
}

func assertNoLeadingOrAdjacentMarks(t *testing.T, s string) {
	t.Helper()
	prevMark := true // a mark at position 0 would have no trigger
	for _, r := range s {
		isMark := obfuscate.IsMark(r)
		if isMark && prevMark {
			t.Fatalf("mark %U without a preceding trigger character in %q", r, s)
		}
		prevMark = isMark
	}
}

func TestObfuscateInsertionRateIsNearProbability(t *testing.T) {
	const n = 20000
	text := strings.Repeat("x", n)
	e := obfuscate.NewSeededEngine(42)
	res := e.Obfuscate(text, obfuscate.Standard)
	// binomial(20000, 0.1): mean 2000, sd ~42; allow 5 sd
	assert.InDelta(t, 2000, res.Inserted, 210)
}

func TestSeededEngineIsDeterministic(t *testing.T) {
	a := obfuscate.NewSeededEngine(7).Obfuscate("deterministic output please", obfuscate.Premium)
	b := obfuscate.NewSeededEngine(7).Obfuscate("deterministic output please", obfuscate.Premium)
	assert.Equal(t, a, b)
}

func TestWithProbabilityClamps(t *testing.T) {
	assert.Equal(t, 1.0, obfuscate.NewEngine(constSource(0), obfuscate.WithProbability(3)).Probability())
	assert.Equal(t, 0.0, obfuscate.NewEngine(constSource(0), obfuscate.WithProbability(-1)).Probability())
	res := obfuscate.NewEngine(constSource(0), obfuscate.WithProbability(0)).Obfuscate("abc", obfuscate.Standard)
	assert.Zero(t, res.Inserted)
}

func TestObfuscateKeepsInvalidUTF8Bytes(t *testing.T) {
	in := "a\xffb"
	res := obfuscate.NewEngine(constSource(0.5)).Obfuscate(in, obfuscate.Standard)
	assert.Equal(t, in, res.Output)
	assert.Equal(t, 3, res.OriginalLength)
}

func TestParseMode(t *testing.T) {
	cases := map[string]obfuscate.Mode{
		"":          obfuscate.Standard,
		"standard":  obfuscate.Standard,
		"PREMIUM":   obfuscate.Premium,
		"auracrypt": obfuscate.Premium,
	}
	for in, want := range cases {
		got, err := obfuscate.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := obfuscate.ParseMode("turbo")
	assert.Error(t, err)
}
