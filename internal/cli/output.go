package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/transform"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

// outputFile writes rendered SQL in the configured charset. Close flushes the
// encoder and then closes the file; calling it again is a no-op.
type outputFile struct {
	*transform.Writer

	file   *os.File
	closed bool
}

func createOutput(path, charset string) (*outputFile, error) {
	enc, err := changescript.Encoding(charset)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	return &outputFile{Writer: transform.NewWriter(f, enc.NewEncoder()), file: f}, nil
}

func (o *outputFile) Close() error {
	if o.closed {
		return nil
	}

	o.closed = true

	return errors.Join(o.Writer.Close(), o.file.Close())
}
