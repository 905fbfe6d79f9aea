/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/manifest"
)

var unified bool

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspects built manifests",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <manifest>",
	Short: "Lists the bundles of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Read(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Package:     %s (%s)\n", m.PackageName, m.PackageGUID)
		fmt.Printf("Target:      %s\n", m.BuildTarget)
		fmt.Printf("Built:       %s\n", m.BuiltAt().Format("2006-01-02 15:04:05"))
		fmt.Printf("Remote URL:  %s\n", m.RemoteURL)
		fmt.Printf("Global hash: %s\n\n", m.GlobalHash)
		renderInfos(m.BundleInfos)
		fmt.Printf("\n%d bundles, %s\n", len(m.BundleInfos), humanize.Bytes(uint64(m.TotalSize())))
		return nil
	},
}

var manifestSubsetCmd = &cobra.Command{
	Use:   "subset <manifest> <bundle>...",
	Short: "Lists the bundles a subset download would fetch",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Read(args[0])
		if err != nil {
			return err
		}
		infos := m.CollectSubsetBundleInfos(args[1:])
		renderInfos(infos)
		var total int64
		for _, info := range infos {
			total += info.Size
		}
		fmt.Printf("\n%d bundles, %s\n", len(infos), humanize.Bytes(uint64(total)))
		return nil
	},
}

var manifestDiffCmd = &cobra.Command{
	Use:   "diff <from> <to>",
	Short: "Compares two manifests",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := manifest.Read(args[0])
		if err != nil {
			return err
		}
		to, err := manifest.Read(args[1])
		if err != nil {
			return err
		}

		if unified {
			text, err := manifest.UnifiedDiff(from, to, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		}

		changes := manifest.Compare(from, to)
		if len(changes) == 0 {
			fmt.Println("Manifests are identical")
			return nil
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Bundle", "Change", "Old hash", "New hash", "Size"})
		table.SetAutoWrapText(false)
		for _, c := range changes {
			table.Append([]string{c.BundleName, c.Kind.String(), short(c.OldHash), short(c.NewHash), signedBytes(c.SizeDelta)})
		}
		table.Render()
		return nil
	},
}

func renderInfos(infos []manifest.BundleInfo) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Bundle", "Size", "Hash", "Dependencies"})
	table.SetAutoWrapText(false)
	for _, info := range infos {
		table.Append([]string{info.BundleName, humanize.Bytes(uint64(info.Size)), short(info.Hash), strings.Join(info.Dependencies, ", ")})
	}
	table.Render()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return "+" + humanize.Bytes(uint64(n))
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestShowCmd, manifestSubsetCmd, manifestDiffCmd)

	manifestDiffCmd.Flags().BoolVar(&unified, "unified", false, "Print a unified diff of the manifest files")
}
