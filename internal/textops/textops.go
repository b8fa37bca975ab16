// Package textops implements the selection actions of the editor.
package textops

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	Uppercase  = "uppercase"
	Lowercase  = "lowercase"
	Capitalize = "capitalize"
	Remove     = "remove"
)

var wordStart = regexp.MustCompile(`\b\w`)

var actions = map[string]func(string) string{
	Uppercase:  strings.ToUpper,
	Lowercase:  strings.ToLower,
	Capitalize: func(s string) string { return wordStart.ReplaceAllStringFunc(s, strings.ToUpper) },
	Remove:     func(string) string { return "" },
}

// Actions lists the supported action names.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for k := range actions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply transforms text with the named action.
func Apply(action, text string) (string, error) {
	fn, ok := actions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return "", fmt.Errorf("unknown action %q (want one of %s)", action, strings.Join(Actions(), ", "))
	}
	return fn(text), nil
}

// ApplyRange runs action over the runes [start,end) of text and returns the
// full text with the selection replaced, plus the selected text before the
// change. Bounds are clamped to the text.
func ApplyRange(action, text string, start, end int) (string, string, error) {
	lo, hi := byteRange(text, start, end)
	sel := text[lo:hi]
	repl, err := Apply(action, sel)
	if err != nil {
		return "", "", err
	}
	return text[:lo] + repl + text[hi:], sel, nil
}

// Slice returns the runes [start,end) of text, clamped.
func Slice(text string, start, end int) string {
	lo, hi := byteRange(text, start, end)
	return text[lo:hi]
}

func byteRange(text string, start, end int) (int, int) {
	n := utf8.RuneCountInString(text)
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	lo, hi := len(text), len(text)
	i := 0
	for off := range text {
		if i == start {
			lo = off
		}
		if i == end {
			hi = off
			break
		}
		i++
	}
	return lo, hi
}
