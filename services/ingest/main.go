// Command ingest runs the UK postcode and address ingestion pipeline:
// download the three public extracts, stream-parse them into batches, load
// them idempotently into Postgres, and reconcile the two datasets.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/config"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
}

type app struct {
	cfg config.Config
	st  *store.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ingest",
		Short:         "UK postcode and address ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := store.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.st = st
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.st != nil {
				a.st.Close()
			}
		},
	}

	root.AddCommand(
		newDownloadCmd(a),
		newLoadPostcodesCmd(a),
		newLoadAddressesCmd(a),
		newMergeCmd(a),
		newStatusCmd(a),
		newAllCmd(a),
	)
	return root
}

func newDownloadCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "download [codepoint|nspl|osm|all]",
		Short: "Download data sources concurrently",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "all"
			if len(args) == 1 {
				source = args[0]
			}
			return a.runDownload(cmd.Context(), source, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-download even if the file exists")
	return cmd
}

func newLoadPostcodesCmd(a *app) *cobra.Command {
	var truncate bool
	cmd := &cobra.Command{
		Use:   "load-postcodes",
		Short: "Load postcodes from the coordinate and admin-lookup sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoadPostcodes(cmd.Context(), truncate)
		},
	}
	cmd.Flags().BoolVar(&truncate, "truncate", false, "truncate the postcodes table first")
	return cmd
}

func newLoadAddressesCmd(a *app) *cobra.Command {
	var (
		truncate  bool
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "load-addresses",
		Short: "Load addresses from the geographic extract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoadAddresses(cmd.Context(), truncate, batchSize)
		},
	}
	cmd.Flags().BoolVar(&truncate, "truncate", false, "truncate the addresses table first")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "override the configured batch size")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Link addresses to postcodes, compute confidence scores, deduplicate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd.Context())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ingestion status and source states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.Context())
		},
	}
}

func newAllCmd(a *app) *cobra.Command {
	var forceDownload bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the full pipeline: download, load, merge, status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAll(cmd.Context(), forceDownload)
		},
	}
	cmd.Flags().BoolVar(&forceDownload, "force-download", false, "re-download even if files exist")
	return cmd
}
