package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/logbook/internal/coerce"
	"github.com/mesh-intelligence/logbook/pkg/logbook"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

func newEntryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Log, change and list entries",
	}
	cmd.AddCommand(
		newEntryCreateCmd(a),
		newEntryUpdateCmd(a),
		newEntryGetCmd(a),
		newEntryDeleteCmd(a),
		newEntryListCmd(a),
	)
	return cmd
}

const setHelp = "column value as column=value; column is an id or a name (repeatable)"

func newEntryCreateCmd(a *app) *cobra.Command {
	var sets []string
	var at string
	cmd := &cobra.Command{
		Use:   "create <category-id>",
		Short: "Log an entry in a category",
		Long: `Log an entry. Values are checked against the category's columns:
numbers and dates may be left empty, a checkbox given as just its name is
checked, and a checkbox that is not set is stored unchecked.`,
		Example: `  logbook entry create 0192f --set Weight=72.5 --set Gym
  logbook entry create 0192f --set Weight= --at 2025-02-14T07:30`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loggedAt, err := parseAt(at)
			if err != nil {
				return err
			}
			return a.withService(func(s *logbook.Service) error {
				cat, err := s.GetCategory(args[0])
				if err != nil {
					return err
				}
				raw, err := resolveSets(sets, cat.Schema)
				if err != nil {
					return err
				}
				e, err := s.CreateEntry(cat.CategoryID, raw, loggedAt)
				if err != nil {
					return err
				}
				return a.showEntry(cmd, cat, e)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, setHelp)
	cmd.Flags().StringVar(&at, "at", "", "when the entry happened (default: now)")
	return cmd
}

func newEntryUpdateCmd(a *app) *cobra.Command {
	var sets []string
	var at string
	var merge bool
	cmd := &cobra.Command{
		Use:   "update <entry-id>",
		Short: "Replace the values of an entry",
		Long: `Replace the values of an entry. Columns not given with --set are
cleared unless --merge is passed, which starts from the stored values.
Values of removed columns are dropped either way.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loggedAt, err := parseAt(at)
			if err != nil {
				return err
			}
			return a.withService(func(s *logbook.Service) error {
				e, err := s.GetEntry(args[0])
				if err != nil {
					return err
				}
				cat, err := s.GetCategory(e.CategoryID)
				if err != nil {
					return err
				}
				raw, err := resolveSets(sets, cat.Schema)
				if err != nil {
					return err
				}
				if merge {
					raw = mergeStored(e, cat.Schema, raw)
				}
				if e, err = s.UpdateEntry(e.EntryID, raw, loggedAt); err != nil {
					return err
				}
				return a.showEntry(cmd, cat, e)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, setHelp)
	cmd.Flags().StringVar(&at, "at", "", "new logged time (default: keep)")
	cmd.Flags().BoolVar(&merge, "merge", false, "keep stored values for columns not set")
	return cmd
}

func newEntryGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entry-id>",
		Short: "Show an entry",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(s *logbook.Service) error {
				e, err := s.GetEntry(args[0])
				if err != nil {
					return err
				}
				cat, err := s.GetCategory(e.CategoryID)
				if err != nil {
					return err
				}
				return a.showEntry(cmd, cat, e)
			})
		},
	}
}

func newEntryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete an entry",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(s *logbook.Service) error {
				if err := s.DeleteEntry(args[0]); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]string{"entry_id": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %s\n", args[0])
				return nil
			})
		},
	}
}

func newEntryListCmd(a *app) *cobra.Command {
	var page types.Page
	cmd := &cobra.Command{
		Use:   "list <category-id>",
		Short: "List a category's entries, most recent first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPage(page); err != nil {
				return err
			}
			return a.withService(func(s *logbook.Service) error {
				if a.jsonMode {
					entries, err := s.ListEntriesPage(args[0], page)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), entries)
				}
				cat, rendered, err := s.RenderEntries(args[0], page)
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), cat, rendered)
				return nil
			})
		},
	}
	pageFlags(cmd, &page)
	return cmd
}

func (a *app) showEntry(cmd *cobra.Command, cat *types.Category, e *types.Entry) error {
	if a.jsonMode {
		return printJSON(cmd.OutOrStdout(), e)
	}
	printEntry(cmd.OutOrStdout(), cat, e)
	return nil
}

// resolveSets turns column=value flags into raw input keyed by column id.
// A checkbox column named without a value is checked.
func resolveSets(sets []string, schema types.Schema) (map[string]any, error) {
	raw := make(map[string]any, len(sets))
	for _, set := range sets {
		key, value, hasValue := strings.Cut(set, "=")
		col, ok := schema.Resolve(strings.TrimSpace(key))
		if !ok {
			return nil, usagef("--set %q: no column %q", set, strings.TrimSpace(key))
		}
		if !hasValue {
			if col.Type != types.ColumnCheckbox {
				return nil, usagef("--set %q: expected column=value", set)
			}
			value = "on"
		}
		raw[col.ID] = value
	}
	return raw, nil
}

// mergeStored fills raw with the stored values of e for schema columns
// that raw does not set.
func mergeStored(e *types.Entry, schema types.Schema, raw map[string]any) map[string]any {
	for _, col := range schema {
		if _, set := raw[col.ID]; set {
			continue
		}
		if v, ok := e.Value(col.ID); ok {
			raw[col.ID] = rawOf(v)
		}
	}
	return raw
}

// rawOf converts a stored value back into coercer input.
func rawOf(v types.Value) any {
	if s, ok := v.AsText(); ok {
		return s
	}
	if f, ok := v.AsNumber(); ok {
		return f
	}
	if t, ok := v.AsDate(); ok {
		return t
	}
	if b, ok := v.AsCheckbox(); ok {
		return b
	}
	return nil
}

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Time{}, nil
	}
	t, err := coerce.ParseDate(at)
	if err != nil {
		return time.Time{}, usagef("--at: %w", err)
	}
	return t, nil
}
