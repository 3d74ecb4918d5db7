package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/tuning"
	"truce.ai/internal/sim/zones"
)

var (
	docsDataDir string
	docsStore   string
)

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.PersistentFlags().StringVar(&docsDataDir, "data", "./data", "runtime data directory")
	docsCmd.PersistentFlags().StringVar(&docsStore, "store", "sqlite", "document store: sqlite|file")
	docsCmd.AddCommand(docsShowCmd, docsCheckCmd)
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect the stored trust and safe-zone documents offline",
}

var docsShowCmd = &cobra.Command{
	Use:   "show <trust|safezones>",
	Short: "Print a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDocs()
		if err != nil {
			return err
		}
		defer store.Close()
		b, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

// docsCheckCmd loads both documents the way the server does at startup,
// without writing anything back.
var docsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the documents and report skipped entries and one-sided trust edges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDocs()
		if err != nil {
			return err
		}
		defer store.Close()
		report, err := checkDocs(cmd.Context(), store, zap.NewNop())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

type docsReport struct {
	Zones        int          `json:"zones"`
	Migrated     int          `json:"zones_needing_migration"`
	TrustEdges   int          `json:"trust_edges"`
	TrustSkipped int          `json:"trust_skipped"`
	Asymmetric   []trust.Edge `json:"asymmetric,omitempty"`
}

func checkDocs(ctx context.Context, store docstore.Store, logger *zap.Logger) (docsReport, error) {
	var r docsReport
	t := tuning.Defaults()
	ix := zones.NewIndex(zones.Config{
		CoordLimit: t.Zones.CoordLimit,
		LegacyMinY: t.Zones.LegacyMinY,
		LegacyMaxY: t.Zones.LegacyMaxY,
	}, nil, logger, time.Now)
	n, migrated, err := ix.Load(ctx, store)
	if err != nil {
		return r, fmt.Errorf("safe zones: %w", err)
	}
	r.Zones, r.Migrated = n, migrated

	g := trust.New(trust.Config{}, trust.Deps{Actors: actors.NewDirectory(), Log: logger})
	r.TrustEdges, r.TrustSkipped, err = g.Load(ctx, store)
	if err != nil {
		return r, fmt.Errorf("trust: %w", err)
	}
	r.Asymmetric = g.Asymmetries()
	return r, nil
}

func openDocs() (docstore.Store, error) {
	switch docsStore {
	case "sqlite":
		s, err := docstore.OpenSQLite(filepath.Join(docsDataDir, "truce.sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "file":
		f, err := docstore.NewFile(filepath.Join(docsDataDir, "docs"))
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown store %q", docsStore)
	}
}
