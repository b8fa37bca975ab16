package obfuscate

import (
	"fmt"
	"strings"
)

// Mode selects the alphabet marks are drawn from.
type Mode int

const (
	// Standard injects zero-width marks.
	Standard Mode = iota
	// Premium injects variation selectors and tag characters ("AuraCrypt").
	Premium
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Premium:
		return "premium"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names printed by String, case-insensitively.
// "auracrypt" is accepted as an alias for premium.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "premium", "auracrypt":
		return Premium, nil
	default:
		return Standard, fmt.Errorf("invalid mode: %q (use standard or premium)", s)
	}
}

var standardMarks = []rune{
	'\u200B', // zero width space
	'\u200C', // zero width non-joiner
	'\u200D', // zero width joiner
	'\u2060', // word joiner
	'\u2061', // function application
	'\u2062', // invisible times
	'\u2063', // invisible separator
	'\u2064', // invisible plus
}

var premiumMarks = buildPremium()

func buildPremium() []rune {
	out := make([]rune, 0, 16+96)
	for r := rune(0xFE00); r <= 0xFE0F; r++ {
		out = append(out, r)
	}
	for r := rune(0xE0020); r <= 0xE007F; r++ {
		out = append(out, r)
	}
	return out
}

// Alphabet returns a copy of the marks used by mode.
func Alphabet(mode Mode) []rune {
	src := alphabet(mode)
	out := make([]rune, len(src))
	copy(out, src)
	return out
}

func alphabet(mode Mode) []rune {
	if mode == Premium {
		return premiumMarks
	}
	return standardMarks
}

// IsMark reports whether r belongs to either alphabet.
func IsMark(r rune) bool {
	return isStandardMark(r) || isPremiumMark(r)
}

func isStandardMark(r rune) bool {
	return (r >= 0x200B && r <= 0x200D) || (r >= 0x2060 && r <= 0x2064)
}

func isPremiumMark(r rune) bool {
	return (r >= 0xFE00 && r <= 0xFE0F) || (r >= 0xE0020 && r <= 0xE007F)
}
