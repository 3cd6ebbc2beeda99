package cli

import (
	"github.com/JonMunkholm/regingest/internal/config"
	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/logging"
	"github.com/JonMunkholm/regingest/internal/source"
	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	Rules string
}

// NewValidateCommand creates the validate command. It needs no database.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Check a batch against the rule catalog",
		Long: `Check a batch against the rule catalog without touching the database.

Prints the number of valid and invalid records, the reasons each rejected
row failed, and the optional fields that were nulled. Exits 1 when any
row is rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rules, "rules", "", "rule catalog file (default: INGEST_RULES_PATH, then the built-in catalog)")

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *ValidateOptions, ref string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	var (
		ingest config.IngestConfig
		src    config.SourceConfig
		logCfg config.LoggingConfig
	)
	for _, section := range []any{&ingest, &src, &logCfg} {
		if err := config.LoadSection(section); err != nil {
			formatter.Error(err, "")
			return WrapExitError(ExitCommandError, "", err)
		}
	}
	logging.SetupWriter(cmd.ErrOrStderr(), logCfg.Level, logCfg.Format)

	rules := opts.Rules
	if rules == "" {
		rules = ingest.RulesPath
	}
	catalog, err := core.LoadCatalog(rules)
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}

	reader := source.NewReader(source.Config{Region: src.AWSRegion, Endpoint: src.S3Endpoint}).
		WithStdin(cmd.InOrStdin())
	batch, err := reader.Read(cmd.Context(), ref)
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}

	res := core.NewValidator(catalog).Validate(cmd.Context(), batch.Records)
	if err := formatter.Validation(res.Report()); err != nil {
		return WrapExitError(ExitFailure, "write report", err)
	}
	if len(res.Invalid) > 0 {
		return &ExitError{Code: ExitFailure, Message: "batch has rejected rows"}
	}
	return nil
}
