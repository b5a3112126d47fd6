package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reframe-labs/reframe/internal/config"
)

// scaffold mirrors the config file shape for the generated starter file.
type scaffold struct {
	Source struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
	} `yaml:"source"`
	Input struct {
		CSVPath string          `yaml:"csv_path"`
		Fields  []scaffoldField `yaml:"fields"`
	} `yaml:"input"`
	Pipeline struct {
		Seed        uint64         `yaml:"seed"`
		Rules       []scaffoldRule `yaml:"rules"`
		TerminalKey []string       `yaml:"terminal_key"`
		Pivot       scaffoldPivot  `yaml:"pivot"`
		Standardize []scaffoldStdz `yaml:"standardize"`
	} `yaml:"pipeline"`
	Output struct {
		Table string `yaml:"table"`
	} `yaml:"output"`
	StatePath string `yaml:"state_path"`
}

type scaffoldField struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

type scaffoldRule struct {
	GroupBy []string `yaml:"group_by"`
	OrderBy string   `yaml:"order_by"`
	Keep    string   `yaml:"keep"`
}

type scaffoldPivot struct {
	Identity    []string          `yaml:"identity"`
	PivotField  string            `yaml:"pivot_field"`
	ValueFields []string          `yaml:"value_fields"`
	Suffixes    map[string]string `yaml:"suffixes"`
}

type scaffoldStdz struct {
	GroupBy []string `yaml:"group_by"`
	Target  string   `yaml:"target"`
	As      string   `yaml:"as"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new reframe project",
		Long: `Create a starter reframe.yaml with a worked example pipeline: one
dedup rule, a pivot spec, and a standardize pass. Edit the input schema
and field names to match your extract.`,
		Example: `  # Initialize in the current directory
  reframe init

  # Initialize in a new directory
  reframe init my-project

  # Overwrite an existing config
  reframe init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	r := GetRenderer(cmd.Context())

	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	data, err := yaml.Marshal(starterConfig())
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(configPath, "success", "")
	r.Println("")
	r.Success("reframe project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Point input.csv_path (or input.table) at your extract")
	r.Println("  2. Declare the input fields and adjust the rule chain")
	r.Println("  3. Run 'reframe validate' to check the pipeline")
	r.Println("  4. Run 'reframe run' to produce the wide table")

	return nil
}

// starterConfig is the worked example written by init: repeated measurements
// per subject and session, deduplicated, pivoted by session, standardized.
func starterConfig() scaffold {
	var s scaffold
	s.Source.Type = "duckdb"
	s.Source.Path = "reframe.duckdb"
	s.Input.CSVPath = "measurements.csv"
	s.Input.Fields = []scaffoldField{
		{Name: "subject_id", Type: "int"},
		{Name: "cohort", Type: "string"},
		{Name: "session", Type: "string"},
		{Name: "measured_at", Type: "date", Nullable: true},
		{Name: "score", Type: "float", Nullable: true},
	}
	s.Pipeline.Seed = 1
	s.Pipeline.Rules = []scaffoldRule{
		{GroupBy: []string{"subject_id", "session", "measured_at"}, OrderBy: "score", Keep: "max"},
		{GroupBy: []string{"subject_id", "session"}, OrderBy: "measured_at", Keep: "min"},
	}
	s.Pipeline.TerminalKey = []string{"subject_id", "session"}
	s.Pipeline.Pivot = scaffoldPivot{
		Identity:    []string{"subject_id"},
		PivotField:  "session",
		ValueFields: []string{"score", "measured_at"},
		Suffixes:    map[string]string{"baseline": "_b", "followup": "_f"},
	}
	s.Pipeline.Standardize = []scaffoldStdz{
		{GroupBy: []string{"cohort"}, Target: "score_b", As: "score_b_z"},
	}
	s.Output.Table = "wide_scores"
	s.StatePath = ".reframe/state.db"
	return s
}
