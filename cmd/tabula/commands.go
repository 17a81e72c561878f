package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/internal"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabula",
		Short: "tabula - schema-driven CSV import and export",
		Long: `tabula imports CSV files into schema-typed entities and exports them back.
Headers map onto attributes by name, dotted headers address relations and
component subfields, and media archives can be matched onto media fields.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewImportCmd(), NewExportCmd(), NewMediaCmd(), NewSchemasCmd(), NewHealthCmd())
	return rootCmd
}

type ImportOptions struct {
	Schema       string
	Upsert       bool
	UpsertField  string
	BatchSize    int
	DryRun       bool
	MediaArchive string
	MatchField   string
}

func NewImportCmd() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file into a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c.Context(), opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "Target schema uid (e.g. api::country.country)")
	cmd.Flags().BoolVar(&opts.Upsert, "upsert", false, "Update existing entities matched on the upsert field")
	cmd.Flags().StringVar(&opts.UpsertField, "upsert-field", "", "Field used to match existing entities (default id)")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Rows per processing chunk (default 100)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Run the full pipeline against in-memory stores")
	cmd.Flags().StringVar(&opts.MediaArchive, "media-archive", "", "Zip archive matched onto media fields before import")
	cmd.Flags().StringVar(&opts.MatchField, "match-field", "", "Row field matched against archive filenames")
	cmd.MarkFlagRequired("schema")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read csv file: %w", err)
	}

	engine, _, cleanup, err := buildEngine(loadConfig(), opts.DryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	importOpts := tabula.ImportOptions{
		Upsert:      opts.Upsert,
		UpsertField: opts.UpsertField,
		BatchSize:   opts.BatchSize,
	}

	if opts.MediaArchive != "" {
		archive, err := os.ReadFile(opts.MediaArchive)
		if err != nil {
			return fmt.Errorf("read media archive: %w", err)
		}
		mappings, err := engine.MapArchive(ctx, opts.Schema, archive, opts.MatchField)
		if err != nil {
			return err
		}
		importOpts.MediaMappings = mappings
	}

	validation, outcome, err := engine.ImportCSV(ctx, opts.Schema, raw, importOpts)
	if err != nil {
		return err
	}

	printImportReport(validation, outcome, opts.DryRun)
	if len(validation.Errors) > 0 && outcome.Created == 0 && outcome.Updated == 0 {
		return fmt.Errorf("import rejected: %d error(s)", len(validation.Errors))
	}
	return nil
}

func printImportReport(validation *tabula.ValidationResult, outcome *tabula.ImportOutcome, dryRun bool) {
	for _, warning := range validation.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	for _, e := range validation.Errors {
		fmt.Printf("error: %s\n", e)
	}
	for _, rowErr := range outcome.Errors {
		fmt.Printf("error: %s\n", rowErr.String())
	}

	label := ""
	if dryRun {
		label = " (dry run)"
	}
	fmt.Printf("created %d, updated %d, failed %d%s\n",
		outcome.Created, outcome.Updated, len(outcome.Errors), label)
}

type ExportOptions struct {
	Schema  string
	Out     string
	Filters []string
}

func NewExportCmd() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a schema's entities as CSV",
		RunE: func(c *cobra.Command, args []string) error {
			return runExport(c.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "Schema uid to export")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "Filter as field=op:value (op: eq, eqi, containsi)")
	cmd.MarkFlagRequired("schema")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions) error {
	filters, err := parseFilters(opts.Filters)
	if err != nil {
		return err
	}

	engine, _, cleanup, err := buildEngine(loadConfig(), false)
	if err != nil {
		return err
	}
	defer cleanup()

	csvData, err := engine.ExportCSV(ctx, opts.Schema, filters)
	if err != nil {
		return err
	}

	if opts.Out == "" {
		fmt.Print(string(csvData))
		return nil
	}
	return os.WriteFile(opts.Out, csvData, 0o644)
}

func parseFilters(exprs []string) ([]tabula.Filter, error) {
	var filters []tabula.Filter
	for _, expr := range exprs {
		field, rest, found := strings.Cut(expr, "=")
		if !found || field == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field=op:value", expr)
		}
		op := tabula.OpEq
		value := rest
		if opName, v, hasOp := strings.Cut(rest, ":"); hasOp {
			switch opName {
			case "eq":
				op = tabula.OpEq
			case "eqi":
				op = tabula.OpEqCI
			case "containsi":
				op = tabula.OpContainsCI
			default:
				return nil, fmt.Errorf("unsupported filter operator: %s", opName)
			}
			value = v
		}
		filters = append(filters, tabula.Filter{Field: field, Op: op, Value: value})
	}
	return filters, nil
}

type MediaOptions struct {
	Schema     string
	MatchField string
}

func NewMediaCmd() *cobra.Command {
	opts := &MediaOptions{}

	cmd := &cobra.Command{
		Use:   "media <archive.zip>",
		Short: "Upload a media archive",
		Long: `Uploads every file of a zip archive. With --schema the entries are first
bucketed onto the schema's media fields and the resulting mappings are
printed as JSON, ready for an import request.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runMedia(c.Context(), opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "Schema uid whose media fields receive the entries")
	cmd.Flags().StringVar(&opts.MatchField, "match-field", "", "Row field matched against archive filenames")

	return cmd
}

func runMedia(ctx context.Context, opts *MediaOptions, path string) error {
	archive, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read media archive: %w", err)
	}

	engine, _, cleanup, err := buildEngine(loadConfig(), false)
	if err != nil {
		return err
	}
	defer cleanup()

	var result any
	if opts.Schema != "" {
		result, err = engine.MapArchive(ctx, opts.Schema, archive, opts.MatchField)
	} else {
		result, err = engine.BulkUpload(ctx, archive)
	}
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func NewHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the configured backends",
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadConfig()

			if err := internal.ValidateDatabaseConfig(cfg.Database); err != nil {
				return err
			}
			if err := internal.ValidateS3Config(cfg.S3); err != nil {
				return err
			}

			if cfg.Database.URL == "" {
				fmt.Println("database: not configured (in-memory store)")
			} else if err := internal.PostgresHealthCheck(c.Context(), cfg.Database.URL, 0); err != nil {
				return fmt.Errorf("database: %w", err)
			} else {
				fmt.Println("database: ok")
			}

			if cfg.S3.Bucket == "" {
				fmt.Println("media: not configured (in-memory store)")
			} else if err := internal.S3HealthCheck(c.Context(), cfg.S3, 0); err != nil {
				return fmt.Errorf("media: %w", err)
			} else {
				fmt.Println("media: ok")
			}
			return nil
		},
	}
}

func NewSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the importable schemas",
		RunE: func(c *cobra.Command, args []string) error {
			_, registry, cleanup, err := buildEngine(loadConfig(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, schema := range registry.Schemas() {
				fmt.Printf("%s\t%s\t%d attributes\n",
					schema.UID, schema.Info.DisplayName, len(schema.AttributeOrder))
			}
			return nil
		},
	}
}
