package changescript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// UndoMarker separates the forward section of a change script file from its inverse.
const UndoMarker = "--//@UNDO"

// DefaultEncoding is used when no encoding name is given.
const DefaultEncoding = "UTF-8"

const maxLineSize = 16 * 1024 * 1024

// filenamePattern captures the change number at the start of a script filename:
//
//	001_create_users.sql
//	42 add index.sql
var filenamePattern = regexp.MustCompile(`^(\d+)`) //nolint:gochecknoglobals // compiled once, used by LoadDir

// LoadDir scans a directory for .sql change scripts and returns them unsorted.
// Subdirectories and files without the .sql suffix are skipped; a .sql file whose
// name does not start with a change number is an error.
func LoadDir(dir, encoding string) ([]*ChangeScript, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading change script directory %s: %w", dir, err)
	}

	var scripts []*ChangeScript

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".sql") {
			continue
		}

		id, err := ParseFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		cs, err := LoadFile(id, filepath.Join(dir, entry.Name()), encoding)
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, cs)
	}

	return scripts, nil
}

// ParseFilename extracts the change number from the leading digits of a filename.
func ParseFilename(name string) (int64, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnrecognisedFilename, name)
	}

	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnrecognisedFilename, name, err)
	}

	return id, nil
}

// LoadFile reads a change script file and builds a ChangeScript whose description is the filename.
func LoadFile(id int64, path, encoding string) (*ChangeScript, error) {
	doContent, undoContent, err := ReadFile(path, encoding)
	if err != nil {
		return nil, err
	}

	cs, err := New(id, filepath.Base(path), doContent, undoContent)
	if err != nil {
		return nil, fmt.Errorf("loading change script %s: %w", path, err)
	}

	return cs, nil
}

// LoadScript reads a plain script such as a pre- or post-script. Anything after an
// undo marker is ignored.
func LoadScript(path, encoding string) (Script, error) {
	content, _, err := ReadFile(path, encoding)
	if err != nil {
		return Script{}, err
	}

	return NewScript(filepath.Base(path), content), nil
}

// ReadFile decodes the file with the named encoding and splits it at the undo marker.
func ReadFile(path, encoding string) (doContent, undoContent string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("reading change script file %s: %w", path, err)
	}
	defer f.Close()

	r, err := decoder(f, encoding)
	if err != nil {
		return "", "", fmt.Errorf("reading change script file %s: %w", path, err)
	}

	doContent, undoContent, err = Split(r)
	if err != nil {
		return "", "", fmt.Errorf("reading change script file %s: %w", path, err)
	}

	return doContent, undoContent, nil
}

// Split reads lines from r and returns the text before and after the undo marker.
// A line counts as the marker when it equals UndoMarker after trimming surrounding
// whitespace. The marker line itself is dropped and every kept line ends with "\n".
func Split(r io.Reader) (doContent, undoContent string, err error) {
	var do, undo strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	target := &do

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == UndoMarker {
			target = &undo
			continue
		}

		target.WriteString(line)
		target.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return "", "", err
	}

	return do.String(), undo.String(), nil
}

// Encoding resolves an IANA charset name such as "UTF-8" or "ISO-8859-1".
// An empty name means DefaultEncoding.
func Encoding(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}

	return enc, nil
}

func decoder(r io.Reader, name string) (io.Reader, error) {
	enc, err := Encoding(name)
	if err != nil {
		return nil, err
	}

	return transform.NewReader(r, enc.NewDecoder()), nil
}
