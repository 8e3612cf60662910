package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dbdeploy/dbdeploy/internal/controller"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)                       //nolint:gochecknoglobals // immutable style
	appliedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))  //nolint:gochecknoglobals // immutable style
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))  //nolint:gochecknoglobals // immutable style
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  //nolint:gochecknoglobals // immutable style
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  //nolint:gochecknoglobals // immutable style
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) //nolint:gochecknoglobals // immutable style
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show applied and pending change scripts",
	Long: `Compare the change scripts directory with the changelog table and list
the applied, available and pending change numbers. Checksums of applied
scripts are verified; nothing is executed.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	registerStatusFlags(statusCmd.Flags())
	rootCmd.AddCommand(statusCmd)
}

func registerStatusFlags(fs *pflag.FlagSet) {
	fs.Int64("last-change", controller.NoCeiling, "highest change number to consider")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := commandConfig(cmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.ValidateScriptsDir(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	repo, err := loadRepository(cfg)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer sess.Close()

	plan, err := controller.New(repo, sess.tracker, nil, controller.WithLogger(Logger)).Plan(ctx, cfg.LastChangeToApply)
	if err != nil {
		return err
	}

	printPlan(out, plan)

	return nil
}

func printPlan(out io.Writer, p controller.Plan) {
	available := make([]int64, 0, len(p.Available))
	for _, cs := range p.Available {
		available = append(available, cs.ID())
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", headingStyle.Render("Changes currently applied to database:"), appliedStyle.Render(controller.FormatIDs(p.Applied)))
	fmt.Fprintf(out, "%s %s\n", headingStyle.Render("Scripts available:"), controller.FormatIDs(available))

	if len(p.Pending) == 0 {
		fmt.Fprintf(out, "%s %s\n", headingStyle.Render("To be applied:"), mutedStyle.Render("(none)"))

		return
	}

	fmt.Fprintln(out, headingStyle.Render("To be applied:"))

	for _, cs := range p.Pending {
		fmt.Fprintf(out, "  %s\n", pendingStyle.Render(cs.String()))
	}
}
