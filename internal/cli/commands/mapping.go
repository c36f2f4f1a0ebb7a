package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/distill-labs/distillprep/internal/mapping"
)

// NewMappingCommand creates the mapping command group.
func NewMappingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage the interchange-variable mapping document",
		Long: `Generate, validate, and inspect the interchange-variable mapping:
the document that tells the distillation trainer which teacher layer
ranges correspond to which student layers.`,
	}

	cmd.AddCommand(newMappingGenerateCommand())
	cmd.AddCommand(newMappingValidateCommand())
	cmd.AddCommand(newMappingShowCommand())
	return cmd
}

func newMappingGenerateCommand() *cobra.Command {
	var (
		output     string
		boundaries string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a layer-compression mapping document",
		Long: `Build a many-to-one layer-compression schedule from the configured
model geometry and write it as JSON.

By default the teacher's hidden-state blocks are partitioned evenly,
with any remainder absorbed by the earliest student layers. Use
--boundaries for an explicit partition.`,
		Example: `  # Default schedule from the configured geometry
  distillprep mapping generate

  # Write somewhere else
  distillprep mapping generate --output ./mapping.json

  # Explicit partition boundaries (student_layers + 1 values)
  distillprep mapping generate --boundaries 0,2,4,6,8,9,10,11,12,13`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMappingGenerate(cmd, output, boundaries, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: configured mapping_path)")
	cmd.Flags().StringVar(&boundaries, "boundaries", "", "Comma-separated partition boundaries")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing document")

	return cmd
}

func runMappingGenerate(cmd *cobra.Command, output, boundaries string, force bool) error {
	cfg := getConfig()
	logger := getLogger(cmd)

	path := output
	if path == "" {
		path = cfg.MappingPath
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("mapping document already exists at %s (use --force to overwrite)", path)
		}
	}

	var doc *mapping.Document
	var err error
	if boundaries != "" {
		bounds, perr := parseBoundaries(boundaries)
		if perr != nil {
			return perr
		}
		doc, err = mapping.BuildScheduleWithBoundaries(cfg.Geometry, bounds)
	} else {
		doc, err = mapping.BuildSchedule(cfg.Geometry)
	}
	if err != nil {
		return fmt.Errorf("failed to build schedule: %w", err)
	}

	if err := doc.WriteFile(path); err != nil {
		return err
	}

	logger.Debug("mapping written", "path", path,
		"pairings", len(doc.InterchangeVariableMappings))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d pairings to %s\n",
		len(doc.InterchangeVariableMappings), path)
	return nil
}

func newMappingValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a mapping document against the model geometry",
		Long: `Check that the teacher layer ranges partition the teacher's blocks
exactly, that student layers are strictly increasing and in range,
and that head and dimension spans fit the configured geometry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			path := cfg.MappingPath
			if len(args) == 1 {
				path = args[0]
			}

			doc, err := mapping.ReadFile(path)
			if err != nil {
				return err
			}
			if err := doc.Validate(cfg.Geometry); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pairings, valid\n",
				path, len(doc.InterchangeVariableMappings))
			return nil
		},
	}
	return cmd
}

func newMappingShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Render a mapping document as a table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			path := cfg.MappingPath
			if len(args) == 1 {
				path = args[0]
			}

			doc, err := mapping.ReadFile(path)
			if err != nil {
				return err
			}
			teacher, err := doc.TeacherAddresses()
			if err != nil {
				return err
			}
			student, err := doc.StudentAddresses()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "Teacher Layers", "Student Layer", "Heads", "Dims"})
			for i := range teacher {
				t.AppendRow(table.Row{
					i,
					teacher[i].Layers.String(),
					student[i].Layers.String(),
					teacher[i].Heads.String(),
					teacher[i].Dims.String(),
				})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}

func parseBoundaries(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid boundary %q: must be an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}
