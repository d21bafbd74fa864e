// Package camelot implements C2, the Camelot wheel mapper: converting
// musical keys to/from Camelot notation and scoring harmonic-mixing
// compatibility between two codes.
//
// Wheel arithmetic is grounded on the Camelot/harmonic-wheel logic in
// _examples/stojg-playlist-sorter/playlist/harmonic.go, adapted from a
// distance-classification scheme (perfect/excellent/dramatic/incompatible)
// into the continuous [0,1] CompatibilityScore spec.md §4.2 requires.
package camelot

import (
	"fmt"
	"regexp"
	"strings"
)

// noteToPitchClass maps a note name (sharps and flats) to a 0-indexed
// pitch class, C = 0.
var noteToPitchClass = map[string]int{
	"c": 0, "c#": 1, "db": 1, "d": 2, "d#": 3, "eb": 3, "e": 4, "f": 5,
	"f#": 6, "gb": 6, "g": 7, "g#": 8, "ab": 8, "a": 9, "a#": 10, "bb": 10,
	"b": 11,
}

var keyNameRE = regexp.MustCompile(`(?i)^\s*([a-g][#b]?)\s*(major|minor|maj|min|m)?\s*$`)

// Code is a Camelot code such as "5A" or "12B".
type Code string

// letterForMode returns 'A' or 'B' for minor/major, respectively.
func letterForMode(mode int) byte {
	if mode == 0 {
		return 'A'
	}
	return 'B'
}

// ToCamelot converts a pitch class (0..11) and mode (0 = minor, 1 = major)
// into a Camelot code. The mapping is a fixed, 24-entry bijection: the
// wheel number is a linear function of pitch class, and the letter
// encodes mode, so every (pitchClass, mode) pair maps to a distinct code.
func ToCamelot(pitchClass, mode int) (Code, error) {
	if pitchClass < 0 || pitchClass > 11 {
		return "", fmt.Errorf("camelot: pitch class %d out of range [0,11]", pitchClass)
	}
	if mode != 0 && mode != 1 {
		return "", fmt.Errorf("camelot: mode %d must be 0 or 1", mode)
	}
	number := (pitchClass+3)%12 + 1
	return Code(fmt.Sprintf("%d%c", number, letterForMode(mode))), nil
}

// ToCamelotFromKeyName parses a key string like "C# minor" or "Eb Maj"
// into its Camelot code. The second return value is false if keyName
// couldn't be parsed.
func ToCamelotFromKeyName(keyName string) (Code, bool) {
	m := keyNameRE.FindStringSubmatch(strings.TrimSpace(keyName))
	if m == nil {
		return "", false
	}
	pc, ok := noteToPitchClass[strings.ToLower(m[1])]
	if !ok {
		return "", false
	}
	mode := 1 // default to major if unspecified
	if strings.HasPrefix(strings.ToLower(m[2]), "min") || strings.ToLower(m[2]) == "m" {
		mode = 0
	}
	code, err := ToCamelot(pc, mode)
	if err != nil {
		return "", false
	}
	return code, true
}

// parse splits a Camelot code into its number (1..12) and letter.
func parse(c Code) (number int, letter byte, ok bool) {
	s := string(c)
	if len(s) < 2 {
		return 0, 0, false
	}
	letter = s[len(s)-1]
	letter = byte(strings.ToUpper(string(letter))[0])
	if letter != 'A' && letter != 'B' {
		return 0, 0, false
	}
	numStr := s[:len(s)-1]
	var n int
	if _, err := fmt.Sscanf(numStr, "%d", &n); err != nil || n < 1 || n > 12 {
		return 0, 0, false
	}
	return n, letter, true
}

func nextNumber(n int) int { return n%12 + 1 }
func prevNumber(n int) int { return (n+10)%12 + 1 }

// Compatible returns the four codes a DJ can harmonically mix into from
// code: itself, the two adjacent numbers on the same letter (energy
// shift), and the same number on the other letter (mood shift).
// spec.md §8: Neighbors(1A) = {1A, 12A, 2A, 1B}.
func Compatible(c Code) []Code {
	n, l, ok := parse(c)
	if !ok {
		return nil
	}
	other := byte('B')
	if l == 'B' {
		other = 'A'
	}
	return []Code{
		c,
		Code(fmt.Sprintf("%d%c", prevNumber(n), l)),
		Code(fmt.Sprintf("%d%c", nextNumber(n), l)),
		Code(fmt.Sprintf("%d%c", n, other)),
	}
}

// circularDistance returns the shorter distance between two wheel
// numbers, in [0,6].
func circularDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 6 {
		d = 12 - d
	}
	return d
}

// CompatibilityScore rates how well two Camelot codes mix together, per
// the rule table in spec.md §4.2.
func CompatibilityScore(a, b Code) float64 {
	na, la, ok1 := parse(a)
	nb, lb, ok2 := parse(b)
	if !ok1 || !ok2 {
		return 0.0
	}

	dist := circularDistance(na, nb)

	switch {
	case na == nb && la == lb:
		return 1.0 // perfect
	case la == lb && dist == 1:
		return 0.8 // energy shift
	case na == nb && la != lb:
		return 0.8 // mood shift
	case la == lb && dist == 2:
		return 0.5 // two steps
	case la == lb && dist == 3:
		return 0.3 // three steps
	case la != lb && dist > 0:
		return 0.3 // different letter, some distance
	default:
		return 0.0
	}
}
