// Package tle validates, parses and formats NORAD two-line element sets.
//
// Validation is purely syntactic: line length, the fixed-column layout of
// each line, and the modulo-10 checksum. Numeric fields are only parsed
// once a pair of lines has passed Validate.
package tle

import (
	"errors"
	"fmt"
	"regexp"
)

// LineLength is the fixed width of each element line, checksum included.
const LineLength = 69

var (
	// ErrLengthMismatch indicates a line that is not exactly LineLength characters.
	ErrLengthMismatch = errors.New("tle length mismatch")
	// ErrPatternMismatch indicates a line that violates the fixed-column layout.
	ErrPatternMismatch = errors.New("tle pattern mismatch")
	// ErrChecksumMismatch indicates a line whose checksum digit is wrong.
	ErrChecksumMismatch = errors.New("tle checksum mismatch")
)

var (
	line1Pattern = regexp.MustCompile(`^1 [ 0-9A-HJ-NP-Z][ 0-9]{4}[A-Z] [ 0-9]{5}[ A-Z]{3} ` +
		`[ 0-9]{5}[.][ 0-9]{8} (?:(?:[ 0+-][.][ 0-9]{8})|(?: [ +-][.][ 0-9]{7})) ` +
		`[ +-][ 0-9]{5}[+-][ 0-9] [ +-][ 0-9]{5}[+-][ 0-9] [ 0-9] [ 0-9]{4}[ 0-9]$`)

	line2Pattern = regexp.MustCompile(`^2 [ 0-9A-HJ-NP-Z][ 0-9]{4} [ 0-9]{3}[.][ 0-9]{4} ` +
		`[ 0-9]{3}[.][ 0-9]{4} [ 0-9]{7} [ 0-9]{3}[.][ 0-9]{4} ` +
		`[ 0-9]{3}[.][ 0-9]{4} [ 0-9]{2}[.][ 0-9]{13}[ 0-9]$`)
)

// ValidationError reports the first violated check and the offending line.
type ValidationError struct {
	Line   int   // 1 or 2
	Reason error // one of the Err*Mismatch sentinels
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Validate checks both lines in order: length, column pattern, checksum.
// It fails fast on the first violation.
func Validate(line1, line2 string) error {
	lines := [2]string{line1, line2}
	for i, l := range lines {
		if len(l) != LineLength {
			return &ValidationError{
				Line:   i + 1,
				Reason: ErrLengthMismatch,
				Detail: fmt.Sprintf("got %d characters, want %d", len(l), LineLength),
			}
		}
	}

	patterns := [2]*regexp.Regexp{line1Pattern, line2Pattern}
	for i, l := range lines {
		if !patterns[i].MatchString(l) {
			return &ValidationError{Line: i + 1, Reason: ErrPatternMismatch}
		}
	}

	for i, l := range lines {
		want := Checksum(l)
		got := l[LineLength-1]
		if got < '0' || got > '9' || int(got-'0') != want {
			return &ValidationError{
				Line:   i + 1,
				Reason: ErrChecksumMismatch,
				Detail: fmt.Sprintf("checksum digit %q, computed %d", got, want),
			}
		}
	}
	return nil
}

// Checksum computes the modulo-10 checksum over the first 68 characters of
// a line: digits count their value, minus signs count one, everything else
// counts zero.
func Checksum(line string) int {
	n := LineLength - 1
	if len(line) < n {
		n = len(line)
	}
	sum := 0
	for i := 0; i < n; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}
