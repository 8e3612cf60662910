package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbdeploy/dbdeploy/internal/changelog"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/config"
	"github.com/dbdeploy/dbdeploy/internal/database"
	"github.com/dbdeploy/dbdeploy/internal/splitter"
)

// session is an open connection plus the changelog manager for one command.
type session struct {
	gw      database.Gateway
	tracker *changelog.Manager
}

func (s *session) Close() {
	s.gw.Close()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

func openSession(ctx context.Context, cfg *config.Config, out io.Writer) (*session, error) {
	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	gw, err := database.Open(ctx, database.Options{
		Driver:   cfg.Driver,
		URL:      cfg.DatabaseURL,
		User:     cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	Logger.Debug("connected", "driver", cfg.Driver, "url", config.RedactURL(cfg.DatabaseURL))

	return &session{gw: gw, tracker: changelog.New(gw, cfg.ChangeLogTable)}, nil
}

func loadRepository(cfg *config.Config) (*changescript.Repository, error) {
	scripts, err := changescript.LoadDir(cfg.ScriptsDir, cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("loading change scripts: %w", err)
	}

	repo, err := changescript.NewRepository(scripts)
	if err != nil {
		return nil, fmt.Errorf("loading change scripts: %w", err)
	}

	Logger.Debug("loaded change scripts", "dir", cfg.ScriptsDir, "count", repo.Len())

	return repo, nil
}

func newSplitter(cfg *config.Config) (*splitter.Splitter, error) {
	delimiterType, err := splitter.ParseDelimiterType(cfg.DelimiterType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrUsage, err)
	}

	lineEnding, err := splitter.ParseLineEnding(cfg.LineEnding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrUsage, err)
	}

	return splitter.New(
		splitter.WithDelimiter(cfg.Delimiter),
		splitter.WithDelimiterType(delimiterType),
		splitter.WithLineEnding(lineEnding),
	), nil
}
