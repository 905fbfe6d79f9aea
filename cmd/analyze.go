/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/builder"
	"github.com/tristendillon/locus/core/graph"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/validate"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Reports the shared bundles each package would get",
	Long: `Builds the dependency tree of every package and writes, per package,
the shared bundles it would extract and which bundles use them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("analyze called")
		cfg, db, err := loadProject()
		if err != nil {
			return err
		}

		o := builder.NewForDatabase(cfg, db)
		defer o.ClearCatalogs()
		packages, err := o.Packages()
		if err != nil {
			return err
		}
		trees, err := o.Trees(packages)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Package", "Bundles", "Shared", "Assets", "Cycles", "Report"})
		table.SetAutoWrapText(false)
		for _, tree := range trees {
			name := strings.ToLower(tree.Package.Name)
			p, err := writeReport(cfg, "shared_"+name+".txt", validate.SharedBundleReport(tree.Result))
			if err != nil {
				return err
			}
			cycles := graph.FromDependencies(tree.Result.BundleDependencies).DetectCycles()
			table.Append([]string{
				tree.Package.Name,
				fmt.Sprint(len(tree.Result.BundleDependencies)),
				fmt.Sprint(len(tree.Result.SharedBundles)),
				fmt.Sprint(len(tree.Result.AllAssets)),
				fmt.Sprint(len(cycles)),
				p,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
