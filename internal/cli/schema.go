package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"

	"github.com/mesh-intelligence/logbook/pkg/logbook"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

func newCategorySchemaCmd(a *app) *cobra.Command {
	var file string
	var columns []string
	cmd := &cobra.Command{
		Use:   "schema <category-id>",
		Short: "Show or replace a category's schema",
		Long: `Without flags, print the schema. With --file or --column, replace it.

--file reads a JSON array (comments and trailing commas allowed) of
{"id", "name", "type"} objects; "-" reads stdin.

--column takes [id=]name[:type] and may be repeated; order is display
order. A column without an id keeps the id of the current column with the
same name, otherwise it is new. An existing column keeps its type unless
one is given; a new column defaults to text. The type is read after the
last ":", so a name that contains ":" needs an explicit type, as in
"Time: start:date".

Columns left out are removed. Stored entries keep their values for them,
but a removed column id can never be used again.`,
		Example: `  logbook category schema 0192f --column Weight:number --column Gym:checkbox
  logbook category schema 0192f --file schema.jsonc`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && len(columns) > 0 {
				return usagef("--file and --column are mutually exclusive")
			}
			return a.withService(func(s *logbook.Service) error {
				cat, err := s.GetCategory(args[0])
				if err != nil {
					return err
				}
				var next types.Schema
				switch {
				case file != "":
					next, err = readSchemaFile(cmd.InOrStdin(), file)
				case len(columns) > 0:
					next, err = parseColumns(columns, cat.Schema)
				default:
					return a.showSchema(cmd, cat.Schema)
				}
				if err != nil {
					return err
				}
				if cat, err = s.UpdateCategorySchema(cat.CategoryID, next); err != nil {
					return err
				}
				return a.showSchema(cmd, cat.Schema)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONC schema file, or - for stdin")
	cmd.Flags().StringArrayVarP(&columns, "column", "c", nil, "column as [id=]name[:type] (repeatable)")
	return cmd
}

func (a *app) showSchema(cmd *cobra.Command, schema types.Schema) error {
	if a.jsonMode {
		return printJSON(cmd.OutOrStdout(), schema)
	}
	if len(schema) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No columns.")
		return nil
	}
	printSchema(cmd.OutOrStdout(), schema)
	return nil
}

// readSchemaFile loads a schema from a JSONC file.
func readSchemaFile(stdin io.Reader, path string) (types.Schema, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return parseSchema(data)
}

func parseSchema(data []byte) (types.Schema, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, usagef("invalid JSONC schema: %w", err)
	}
	var schema types.Schema
	if err := json.Unmarshal(standardized, &schema); err != nil {
		return nil, usagef("invalid schema: %w", err)
	}
	if schema == nil {
		schema = types.Schema{}
	}
	return schema, nil
}

// parseColumns turns [id=]name[:type] specs into a schema. Names are
// matched against current to keep existing column ids, and a column that
// already exists keeps its type when the spec names none.
func parseColumns(specs []string, current types.Schema) (types.Schema, error) {
	schema := make(types.Schema, 0, len(specs))
	for _, spec := range specs {
		col, err := parseColumn(spec)
		if err != nil {
			return nil, err
		}
		if col.ID == "" {
			if existing, ok := current.Resolve(col.Name); ok {
				col.ID = existing.ID
			}
		}
		if col.Type == "" && col.ID != "" {
			if existing, ok := current.Column(col.ID); ok {
				col.Type = existing.Type
			}
		}
		schema = append(schema, col)
	}
	return schema, nil
}

func parseColumn(spec string) (types.ColumnSpec, error) {
	var col types.ColumnSpec
	rest := spec
	if id, name, ok := strings.Cut(rest, "="); ok {
		col.ID = strings.TrimSpace(id)
		rest = name
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		ct, err := types.ParseColumnType(rest[i+1:])
		if err != nil {
			return col, usagef("column %q: %w", spec, err)
		}
		col.Type = ct
		rest = rest[:i]
	}
	col.Name = strings.TrimSpace(rest)
	if col.Name == "" {
		return col, usagef("column %q: name is empty", spec)
	}
	return col, nil
}
