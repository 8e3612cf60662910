package changescript_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantDo   string
		wantUndo string
	}{
		{
			name:   "no marker",
			input:  "Hello\nThere!\n",
			wantDo: "Hello\nThere!\n",
		},
		{
			name:     "marker splits sections",
			input:    "Hello\nThere!\n--//@UNDO\nRest\n",
			wantDo:   "Hello\nThere!\n",
			wantUndo: "Rest\n",
		},
		{
			name:     "marker with trailing whitespace",
			input:    "Hello\nThere!\n--//@UNDO   \nThis is after the undo marker!\n",
			wantDo:   "Hello\nThere!\n",
			wantUndo: "This is after the undo marker!\n",
		},
		{
			name:     "marker with leading whitespace",
			input:    "a\n\t--//@UNDO\nb",
			wantDo:   "a\n",
			wantUndo: "b\n",
		},
		{
			name:   "missing trailing newline is normalised",
			input:  "SELECT 1;",
			wantDo: "SELECT 1;\n",
		},
		{
			name:     "crlf line endings",
			input:    "a\r\n--//@UNDO\r\nb\r\n",
			wantDo:   "a\n",
			wantUndo: "b\n",
		},
		{
			name:     "marker text inside a line is not a marker",
			input:    "SELECT '--//@UNDO';\n",
			wantDo:   "SELECT '--//@UNDO';\n",
			wantUndo: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doContent, undoContent, err := changescript.Split(strings.NewReader(tt.input))

			require.NoError(t, err)
			assert.Equal(t, tt.wantDo, doContent)
			assert.Equal(t, tt.wantUndo, undoContent)
		})
	}
}

func TestLoadFile_usesFilenameAsDescription(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "5_hello.sql", "Hello\nThere!\n--//@UNDO\nRest\n")

	cs, err := changescript.LoadFile(5, path, "UTF-8")

	require.NoError(t, err)
	assert.Equal(t, int64(5), cs.ID())
	assert.Equal(t, "5_hello.sql", cs.Description())
	assert.Equal(t, "#5: 5_hello.sql", cs.String())
	assert.Equal(t, "Hello\nThere!\n", cs.DoContent())
	assert.Equal(t, "Rest\n", cs.UndoContent())
}

func TestLoadFile_checksumOfFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "5.sql", "Hello\nThere!\n")

	cs, err := changescript.LoadFile(5, path, "UTF-8")

	require.NoError(t, err)
	assert.Equal(t, "88749cf876ecae2eaea44e484e2e03d3d81debb7d91e1d0f6aff6e9b7b07e56e", cs.Checksum())
}

func TestLoadFile_latin1(t *testing.T) {
	t.Parallel()

	// 0xE9 is "é" in ISO-8859-1 and invalid as a lone UTF-8 byte.
	path := filepath.Join(t.TempDir(), "1.sql")
	require.NoError(t, os.WriteFile(path, []byte("INSERT INTO t VALUES ('caf\xe9');\n"), 0o600))

	cs, err := changescript.LoadFile(1, path, "ISO-8859-1")

	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES ('café');\n", cs.DoContent())
}

func TestLoadFile_latin1_c1ControlsAreNotWindows1252(t *testing.T) {
	t.Parallel()

	// In windows-1252 0x80 is the euro sign; in ISO-8859-1 it is the C1 control U+0080.
	path := filepath.Join(t.TempDir(), "1.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT '\x80';\n"), 0o600))

	cs, err := changescript.LoadFile(1, path, "ISO-8859-1")

	require.NoError(t, err)
	assert.Equal(t, "SELECT '\u0080';\n", cs.DoContent())
	assert.NotContains(t, cs.DoContent(), "€")
}

func TestEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: ""},
		{name: "UTF-8"},
		{name: "utf-8"},
		{name: "ISO-8859-1"},
		{name: "windows-1252"},
		{name: "no-such-charset", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			enc, err := changescript.Encoding(tt.name)

			if tt.wantErr {
				require.ErrorIs(t, err, changescript.ErrUnknownEncoding)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, enc)
		})
	}
}

func TestLoadFile_unknownEncoding(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "1.sql", "SELECT 1;")

	_, err := changescript.LoadFile(1, path, "no-such-charset")

	require.ErrorIs(t, err, changescript.ErrUnknownEncoding)
}

func TestLoadFile_missingFile(t *testing.T) {
	t.Parallel()

	_, err := changescript.LoadFile(1, filepath.Join(t.TempDir(), "nope.sql"), "UTF-8")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading change script file")
}

func TestLoadScript_ignoresUndoSection(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "pre.sql", "SET search_path TO app;\n--//@UNDO\nRESET search_path;\n")

	s, err := changescript.LoadScript(path, "")

	require.NoError(t, err)
	assert.Equal(t, "pre.sql", s.Description())
	assert.Equal(t, "SET search_path TO app;\n", s.Content())
}

func TestParseFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		want    int64
		wantErr bool
	}{
		{name: "zero padded", file: "001_create_users.sql", want: 1},
		{name: "space separated", file: "42 add index.sql", want: 42},
		{name: "digits only", file: "7.sql", want: 7},
		{name: "no number", file: "create_users.sql", wantErr: true},
		{name: "overflow", file: "99999999999999999999_x.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := changescript.ParseFilename(tt.file)

			if tt.wantErr {
				require.ErrorIs(t, err, changescript.ErrUnrecognisedFilename)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		setup       func(t *testing.T) string
		wantIDs     []int64
		wantErr     error
		errContains string
	}{
		{
			name: "loads sql files and skips others",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "002_second.sql", "SELECT 2;")
				writeFile(t, dir, "001_first.sql", "SELECT 1;\n--//@UNDO\nSELECT -1;")
				writeFile(t, dir, "README.md", "# readme")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o700))

				return dir
			},
			wantIDs: []int64{1, 2},
		},
		{
			name: "unnumbered sql file is an error",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "create_users.sql", "SELECT 1;")

				return dir
			},
			wantErr: changescript.ErrUnrecognisedFilename,
		},
		{
			name: "missing directory",
			setup: func(t *testing.T) string {
				t.Helper()

				return filepath.Join(t.TempDir(), "missing")
			},
			errContains: "reading change script directory",
		},
		{
			name: "empty file is an error",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "1_empty.sql", "")

				return dir
			},
			wantErr: changescript.ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scripts, err := changescript.LoadDir(tt.setup(t), "UTF-8")

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			default:
				require.NoError(t, err)

				repo, err := changescript.NewRepository(scripts)
				require.NoError(t, err)
				assert.Equal(t, tt.wantIDs, ids(repo.Ordered()))
			}
		})
	}
}
