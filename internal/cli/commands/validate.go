package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and pipeline",
		Long: `Check the configuration shape and resolve the pipeline against the
declared input schema without touching the source database.

Reports the schema of the output table the pipeline would produce.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())
			r := GetRenderer(cmd.Context())

			if err := cfg.Validate(); err != nil {
				return err
			}
			schema, err := cfg.ValidatePipeline()
			if err != nil {
				return err
			}

			r.Success("Configuration valid")
			r.Println("")
			r.Header(2, fmt.Sprintf("Output schema (%s)", cfg.Output.Table))

			rows := make([][]string, 0, schema.Len())
			for _, f := range schema.Fields() {
				nullable := "no"
				if f.Nullable {
					nullable = "yes"
				}
				rows = append(rows, []string{f.Name, f.Type.String(), nullable})
			}
			r.Table([]string{"Field", "Type", "Nullable"}, rows)

			return nil
		},
	}
}
