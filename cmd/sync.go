/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/runtime"
)

var (
	syncTarget   string
	syncCacheDir string
	syncSubset   []string
	syncDownload bool
	syncS3       runtime.S3Options
)

var syncCmd = &cobra.Command{
	Use:   "sync <streaming folder>",
	Short: "Loads packages the way the player does",
	Long: `Mounts the local packages of a streaming folder, fetches the remote
manifests they point at and reports, or downloads, what changed.
Remote URLs may be http(s), file or s3 locations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("sync called")
		fetcher := runtime.NewMuxFetcher()
		if syncS3.Endpoint != "" {
			s3, err := runtime.NewS3Fetcher(syncS3)
			if err != nil {
				return err
			}
			fetcher.Handle("s3", s3)
		}

		l, err := runtime.NewLoader(runtime.Options{
			StreamingRoot: args[0],
			BuildTarget:   syncTarget,
			CacheDir:      syncCacheDir,
			Fetcher:       fetcher,
		})
		if err != nil {
			return err
		}
		defer l.Shutdown()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if _, err := l.Initialize().Wait(ctx); err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		fmt.Printf("Mounted %d local bundles\n", len(l.LoadedBundles()))

		manifests, err := l.GetManifests().Wait(ctx)
		if err != nil {
			return fmt.Errorf("failed to get manifests: %w", err)
		}
		size, err := l.GetDownloadSize(manifests, syncSubset)
		if err != nil {
			return err
		}
		fmt.Printf("%d remote manifests, %s to download\n", len(manifests), humanize.Bytes(uint64(size)))
		if !syncDownload {
			return nil
		}

		op := l.Download(manifests, syncSubset)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for !op.IsDone() {
			select {
			case <-ctx.Done():
				_ = op.Cancel()
				<-op.Done()
			case <-op.Done():
			case <-ticker.C:
				logger.Info("Sync: %d/%d (%.0f%%)", op.CurrentCount()+1, op.TotalCount(), op.Progress()*100)
			}
		}
		replaced, err := op.Wait(context.Background())
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		fmt.Printf("Download finished, bundles replaced: %t, cache holds %s\n", replaced, humanize.Bytes(uint64(l.Cache().Size())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncTarget, "target", "android", "Build target the remote URLs are built for")
	syncCmd.Flags().StringVar(&syncCacheDir, "cache", "Library/locus/runtimecache", "Content cache folder")
	syncCmd.Flags().StringSliceVar(&syncSubset, "subset", nil, "Only consider these bundles and their dependencies")
	syncCmd.Flags().BoolVar(&syncDownload, "download", false, "Download and mount the changed bundles")
	syncCmd.Flags().StringVar(&syncS3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint for s3:// remote URLs")
	syncCmd.Flags().StringVar(&syncS3.AccessKey, "s3-access-key", os.Getenv("AWS_ACCESS_KEY_ID"), "S3 access key")
	syncCmd.Flags().StringVar(&syncS3.SecretKey, "s3-secret-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "S3 secret key")
	syncCmd.Flags().StringVar(&syncS3.Region, "s3-region", "", "S3 region")
	syncCmd.Flags().BoolVar(&syncS3.UseSSL, "s3-ssl", true, "Use TLS for S3")
}
