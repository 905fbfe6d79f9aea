/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/builder"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks packages for duplicate names and cross references",
	Long: `Loads every included package, builds its dependency tree and reports
assets that more than one package would pull in, plus packages sharing a
name. Reports are written under the scratch folder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("validate called")
		cfg, db, err := loadProject()
		if err != nil {
			return err
		}
		now := time.Now()

		packages, err := cfg.LoadPackages()
		if err != nil {
			return err
		}
		var problems []error

		if dup := validate.FindDuplicatePackageNames(packages); len(dup) > 0 {
			p, err := writeReport(cfg, "unique_names.txt", validate.UniqueNameReport(packages, now))
			if err != nil {
				return err
			}
			logger.Warn("Validate: %d duplicated package names, see %s", len(dup), p)
			problems = append(problems, &validate.DuplicateNameError{Names: dup})
		}

		o := builder.NewForDatabase(cfg, db)
		defer o.ClearCatalogs()
		trees, err := o.Trees(packages)
		if err != nil {
			return err
		}
		results := builder.PackageResults(trees)
		if refs := validate.FindCrossReferences(results); len(refs) > 0 {
			p, err := writeReport(cfg, "cross_reference.txt", validate.CrossReferenceReport(results, now))
			if err != nil {
				return err
			}
			logger.Warn("Validate: %d cross referenced assets, see %s", len(refs), p)
			problems = append(problems, &validate.CrossReferenceError{Assets: refs})
		}

		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Println(p)
			}
			return fmt.Errorf("validation failed with %d problems", len(problems))
		}
		fmt.Printf("%d packages are valid\n", len(packages))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
