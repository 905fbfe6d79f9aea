/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/packer"
	"github.com/tristendillon/locus/core/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the locus version and bundle format",
	Long: `Prints the locus version together with the bundle file magic and the
codecs this build can read and write. Use --short for the version alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, version.Version)
			return
		}
		fmt.Fprintf(out, "locus %s (%s, %s/%s)\n", version.Version, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
		if rev := vcsRevision(); rev != "" {
			fmt.Fprintf(out, "revision: %s\n", rev)
		}
		fmt.Fprintf(out, "bundle format: %s, codecs: %s %s %s\n", packer.Magic,
			packer.CompressionNone, packer.CompressionLZ4, packer.CompressionZstd)
	},
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version")
	rootCmd.AddCommand(versionCmd)
}
