package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/tristendillon/locus/core/models"
	"github.com/tristendillon/locus/core/packer"
)

// WriteBuildLog writes BundleBuildLog.txt into dir: per bundle its assets
// by serialized size, then any dependency cycles between bundles.
func WriteBuildLog(dir string, results *packer.Results, cycles [][]string, now time.Time) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Build Time : %s\n\n", now.Format("2006-01-02 15:04:05"))

	names := make([]string, 0, len(results.BundleInfos))
	for name := range results.BundleInfos {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := results.BundleInfos[name]
		fmt.Fprintf(&sb, "----File Path : %s (%s, %s)----\n", info.FileName, humanize.Bytes(uint64(info.Size)), info.Compression)
		renderAssets(&sb, info.AssetSizes)
		sb.WriteString("\n")
	}

	if len(cycles) > 0 {
		sb.WriteString("Bundle dependency cycles:\n")
		for _, cycle := range cycles {
			sb.WriteString("    " + strings.Join(cycle, " -> ") + "\n")
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, models.BuildLogFileName), []byte(sb.String()), 0644)
}

func renderAssets(sb *strings.Builder, sizes map[string]int64) {
	type row struct {
		path string
		size int64
	}
	rows := make([]row, 0, len(sizes))
	for p, s := range sizes {
		rows = append(rows, row{p, s})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].size != rows[j].size {
			return rows[i].size > rows[j].size
		}
		return rows[i].path < rows[j].path
	})

	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Size", "Asset"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	for _, r := range rows {
		table.Append([]string{humanize.Bytes(uint64(r.size)), r.path})
	}
	table.Render()
}
