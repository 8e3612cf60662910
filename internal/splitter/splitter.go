// Package splitter breaks the text of a SQL script into individually
// executable statements using a delimiter convention.
package splitter

import (
	"fmt"
	"runtime"
	"strings"
)

// DelimiterType decides how a line is recognised as the end of a statement.
type DelimiterType int

const (
	// Normal ends a statement on any line that ends with the delimiter, e.g. "SELECT 1;".
	Normal DelimiterType = iota
	// Row ends a statement on a line that consists of the delimiter alone, e.g. "GO".
	Row
)

// String returns the configuration name of the delimiter type.
func (d DelimiterType) String() string {
	if d == Row {
		return "row"
	}

	return "normal"
}

// Matches reports whether line terminates a statement.
func (d DelimiterType) Matches(line, delimiter string) bool {
	if d == Row {
		return strings.EqualFold(strings.TrimSpace(line), delimiter)
	}

	return strings.HasSuffix(line, delimiter)
}

// ParseDelimiterType converts "normal" or "row" (case-insensitive) to a DelimiterType.
func ParseDelimiterType(s string) (DelimiterType, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return Normal, nil
	case "row":
		return Row, nil
	default:
		return Normal, fmt.Errorf("%w: %q", ErrUnknownDelimiterType, s)
	}
}

// LineEnding is the separator placed between lines of a multi-line statement.
type LineEnding string

// Supported line endings.
const (
	LF   LineEnding = "\n"
	CR   LineEnding = "\r"
	CRLF LineEnding = "\r\n"
)

// ParseLineEnding converts "platform", "lf", "cr" or "crlf" to a LineEnding.
func ParseLineEnding(s string) (LineEnding, error) {
	switch strings.ToLower(s) {
	case "", "platform":
		if runtime.GOOS == "windows" {
			return CRLF, nil
		}

		return LF, nil
	case "lf":
		return LF, nil
	case "cr":
		return CR, nil
	case "crlf":
		return CRLF, nil
	default:
		return LF, fmt.Errorf("%w: %q", ErrUnknownLineEnding, s)
	}
}

// Splitter splits script text into statements.
type Splitter struct {
	delimiter     string
	delimiterType DelimiterType
	lineEnding    LineEnding
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithDelimiter sets the statement delimiter. The default is ";".
func WithDelimiter(d string) Option {
	return func(s *Splitter) { s.delimiter = d }
}

// WithDelimiterType sets the delimiter convention. The default is Normal.
func WithDelimiterType(t DelimiterType) Option {
	return func(s *Splitter) { s.delimiterType = t }
}

// WithLineEnding sets the separator used when joining the lines of one statement.
func WithLineEnding(le LineEnding) Option {
	return func(s *Splitter) { s.lineEnding = le }
}

// New returns a Splitter. Without options it splits on ";" at the end of a line
// and joins statement lines with "\n".
func New(opts ...Option) *Splitter {
	s := &Splitter{
		delimiter:     ";",
		delimiterType: Normal,
		lineEnding:    LF,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Delimiter returns the configured delimiter.
func (s *Splitter) Delimiter() string { return s.delimiter }

// DelimiterType returns the configured delimiter convention.
func (s *Splitter) DelimiterType() DelimiterType { return s.delimiterType }

// Split returns the statements of input in order. Blank lines are dropped,
// trailing whitespace is stripped from each line, and text after the last
// delimiter becomes a final statement. Empty or whitespace-only input yields
// no statements.
func (s *Splitter) Split(input string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	lines := strings.FieldsFunc(input, func(r rune) bool { return r == '\n' || r == '\r' })

	for _, line := range lines {
		stripped := strings.TrimRight(line, " \t\f\v")

		if current.Len() > 0 {
			current.WriteString(string(s.lineEnding))
		}

		current.WriteString(stripped)

		if stripped != "" && s.delimiterType.Matches(stripped, s.delimiter) {
			stmt := current.String()
			stmt = strings.TrimRight(stmt[:len(stmt)-s.delimiterLen(stripped)], " \t\r\n")

			if strings.TrimSpace(stmt) != "" {
				statements = append(statements, stmt)
			}

			current.Reset()
		}
	}

	if rest := strings.TrimRight(current.String(), " \t\r\n"); strings.TrimSpace(rest) != "" {
		statements = append(statements, rest)
	}

	return statements
}

// delimiterLen is the number of trailing bytes of the terminating line that belong to the delimiter.
func (s *Splitter) delimiterLen(line string) int {
	if s.delimiterType == Row {
		return len(line)
	}

	return len(s.delimiter)
}

// Split splits text with the given delimiter and delimiter type, joining lines with "\n".
func Split(text, delimiter string, delimiterType DelimiterType) []string {
	return New(WithDelimiter(delimiter), WithDelimiterType(delimiterType)).Split(text)
}
