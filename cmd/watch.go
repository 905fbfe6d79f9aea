/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/builder"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/validate"
	"github.com/tristendillon/locus/core/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyses packages whenever assets change",
	Long: `Watches the assets folder and rebuilds every package's dependency tree
after each burst of changes, reporting shared bundles and cross references.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("watch called")
		cfg, db, err := loadProject()
		if err != nil {
			return err
		}
		o := builder.NewForDatabase(cfg, db)

		analyse := func() error {
			defer o.ClearCatalogs()
			packages, err := o.Packages()
			if err != nil {
				return err
			}
			trees, err := o.Trees(packages)
			if err != nil {
				return err
			}
			if err := validate.AssertNoCrossReference(builder.PackageResults(trees)); err != nil {
				logger.Warn("Watch: %v", err)
			}
			logger.Info("Watch: analysed %d packages", len(trees))
			return nil
		}

		root := cfg.Abs(cfg.AssetsRoot)
		w, err := watcher.NewAssetWatcher(root, cfg.Exclude)
		if err != nil {
			return err
		}
		w.OnStart = analyse
		w.OnChange = func(changed []string) error {
			for _, rel := range changed {
				db.Invalidate(path.Join(filepath.ToSlash(cfg.AssetsRoot), rel))
			}
			logger.Info("Watch: %d assets changed", len(changed))
			return analyse()
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		go func() {
			<-sig
			if err := w.Close(); err != nil {
				logger.Error("Watch: %v", err)
			}
		}()

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", root)
		return w.Watch()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
