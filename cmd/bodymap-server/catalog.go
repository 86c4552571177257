package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/bodymap/internal/domain/bodymap"
)

// catalogCmd inspects the built-in marker catalog and region map without a
// database.
func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect marker types and body regions",
	}

	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "List marker types",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			var badge *bool
			if cmd.Flags().Changed("badges") {
				b, _ := cmd.Flags().GetBool("badges")
				badge = &b
			}
			if category != "" && !bodymap.Category(category).Valid() {
				return fmt.Errorf("unknown category %q", category)
			}
			printTypes(cmd.OutOrStdout(), bodymap.DefaultCatalog().Filter(bodymap.Category(category), badge))
			return nil
		},
	}
	typesCmd.Flags().String("category", "", "Only list types in this category")
	typesCmd.Flags().Bool("badges", false, "Only list status badges (true) or only pinned markers (false)")
	cmd.AddCommand(typesCmd)

	regionsCmd := &cobra.Command{
		Use:   "regions",
		Short: "List body regions",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _ := cmd.Flags().GetString("view")
			if !bodymap.View(view).Valid() {
				return fmt.Errorf("view must be front or back")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %-28s %s\n", "ID", "LABEL", "CENTER")
			for _, r := range bodymap.DefaultRegions().RegionsForView(bodymap.View(view)) {
				fmt.Fprintf(out, "%-24s %-28s (%g,%g)\n", r.ID, r.Label, r.Center.X, r.Center.Y)
			}
			return nil
		},
	}
	regionsCmd.Flags().String("view", "front", "front or back")
	cmd.AddCommand(regionsCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <text>",
		Short: "Resolve free-text mentions to marker types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, unmatched := bodymap.DefaultCatalog().ResolveAll(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			for _, r := range resolved {
				side := string(r.Laterality)
				if side == "" {
					side = "-"
				}
				fmt.Fprintf(out, "%-22s %-14s %-6s %s/%s (%g,%g)\n", r.Type, r.Category, side,
					r.Placement.BodyView, r.Placement.BodyRegion, r.Placement.Position.X, r.Placement.Position.Y)
			}
			for _, u := range unmatched {
				fmt.Fprintf(out, "unmatched: %s\n", u)
			}
			return nil
		},
	})

	closestCmd := &cobra.Command{
		Use:   "closest",
		Short: "Find the region nearest to a diagram coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			x, _ := cmd.Flags().GetFloat64("x")
			y, _ := cmd.Flags().GetFloat64("y")
			view, _ := cmd.Flags().GetString("view")
			if x < 0 || x > 100 || y < 0 || y > 100 {
				return fmt.Errorf("coordinates must be within [0,100]")
			}
			if !bodymap.View(view).Valid() {
				return fmt.Errorf("view must be front or back")
			}
			r, ok := bodymap.DefaultRegions().FindClosestRegion(x, y, bodymap.View(view))
			if !ok {
				return fmt.Errorf("no regions for view %s", view)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", r.ID, r.Label)
			return nil
		},
	}
	closestCmd.Flags().Float64("x", 50, "x coordinate")
	closestCmd.Flags().Float64("y", 50, "y coordinate")
	closestCmd.Flags().String("view", "front", "front or back")
	cmd.AddCommand(closestCmd)

	return cmd
}

func printTypes(out io.Writer, defs []bodymap.MarkerTypeDefinition) {
	fmt.Fprintf(out, "%-22s %-28s %-14s %s\n", "TYPE", "DISPLAY NAME", "CATEGORY", "PLACEMENT")
	for _, d := range defs {
		placement := "badge"
		if !d.IsStatusBadge {
			placement = fmt.Sprintf("%s/%s", d.Default.BodyView, d.Default.BodyRegion)
		}
		fmt.Fprintf(out, "%-22s %-28s %-14s %s\n", d.Type, d.DisplayName, d.Category, placement)
	}
}
