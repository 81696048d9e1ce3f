package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"mapdna/internal/assets"

	"github.com/spf13/cobra"
)

func registerAssetsCmd(parent *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage hosted interpreter bundles",
	}

	cmd.AddCommand(newAssetsPublishCmd(app))
	cmd.AddCommand(newAssetsURLsCmd(app))
	parent.AddCommand(cmd)
}

func newAssetsPublishCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "publish <bundle>...",
		Short:   "Upload interpreter bundles to the map-assets bucket",
		Example: `  mapdna assets publish dist/mapbox.js dist/dynamicmap.js`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			bucket, err := assets.NewBucketResolver(s.cfg, assets.BundlePrefix)
			if err != nil {
				return err
			}
			if err := bucket.EnsureBucketExists(cmd.Context()); err != nil {
				return err
			}

			for _, path := range args {
				key, err := publishFile(cmd, bucket, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s/%s\n", path, bucket.Bucket(), key)
			}
			return nil
		},
	}
}

func publishFile(cmd *cobra.Command, bucket *assets.BucketResolver, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return bucket.Publish(cmd.Context(), filepath.Base(path), f, info.Size())
}

func newAssetsURLsCmd(app *App) *cobra.Command {
	var params map[string]string

	cmd := &cobra.Command{
		Use:   "urls [service]",
		Short: "Print the script URLs a page loads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			service := assets.ServiceMaps
			if len(args) == 1 {
				service = args[0]
			}

			var bundles assets.BundleResolver
			if s.cfg.IsMinIOEnabled() {
				bucket, err := assets.NewBucketResolver(s.cfg, assets.BundlePrefix)
				if err != nil {
					return err
				}
				bundles = bucket
			}

			for _, u := range assets.NewLoader(s.cfg, bundles, s.log).Files(cmd.Context(), service, params) {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&params, "param", nil, "extra provider API parameter (key=value)")
	return cmd
}
