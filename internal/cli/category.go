package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/logbook/pkg/logbook"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

func newCategoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Manage categories and their schemas",
	}
	cmd.AddCommand(
		newCategoryCreateCmd(a),
		newCategoryListCmd(a),
		newCategoryGetCmd(a),
		newCategoryUpdateCmd(a),
		newCategoryDeleteCmd(a),
		newCategorySchemaCmd(a),
	)
	return cmd
}

func newCategoryCreateCmd(a *app) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a category with an empty schema",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(s *logbook.Service) error {
				cat, err := s.CreateCategory(title, description)
				if err != nil {
					return err
				}
				return a.showCategory(cmd, cat)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "category title (required)")
	cmd.Flags().StringVar(&description, "description", "", "category description")
	return cmd
}

func newCategoryListCmd(a *app) *cobra.Command {
	var page types.Page
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories in creation order",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkPage(page); err != nil {
				return err
			}
			return a.withService(func(s *logbook.Service) error {
				cats, err := s.ListCategories(page)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), cats)
				}
				printCategories(cmd.OutOrStdout(), cats)
				return nil
			})
		},
	}
	pageFlags(cmd, &page)
	return cmd
}

func newCategoryGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <category-id>",
		Short: "Show a category and its schema",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(s *logbook.Service) error {
				cat, err := s.GetCategory(args[0])
				if err != nil {
					return err
				}
				return a.showCategory(cmd, cat)
			})
		},
	}
}

func newCategoryUpdateCmd(a *app) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "update <category-id>",
		Short: "Change a category's title or description",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch logbook.CategoryPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if patch.Title == nil && patch.Description == nil {
				return usagef("nothing to update: pass --title or --description")
			}
			return a.withService(func(s *logbook.Service) error {
				cat, err := s.UpdateCategory(args[0], patch)
				if err != nil {
					return err
				}
				return a.showCategory(cmd, cat)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newCategoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <category-id>",
		Short: "Delete a category and all of its entries",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(s *logbook.Service) error {
				purged, err := s.DeleteCategory(args[0])
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"category_id":    args[0],
						"entries_purged": purged,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s and %d entries\n", args[0], purged)
				return nil
			})
		},
	}
}

func (a *app) showCategory(cmd *cobra.Command, cat *types.Category) error {
	if a.jsonMode {
		return printJSON(cmd.OutOrStdout(), cat)
	}
	printCategory(cmd.OutOrStdout(), cat)
	return nil
}

func pageFlags(cmd *cobra.Command, page *types.Page) {
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "maximum number of rows (0 for all)")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "rows to skip")
}

func checkPage(page types.Page) error {
	if page.Limit < 0 || page.Offset < 0 {
		return usagef("--limit and --offset must not be negative")
	}
	return nil
}
