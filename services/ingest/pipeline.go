package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/download"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/load"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/record"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/source"
	"github.com/zerotwo/postcode-atlas/services/ingest/internal/store"
)

func (a *app) sources() map[string]download.Source {
	return map[string]download.Source{
		"codepoint": {URL: a.cfg.CodePointURL, Dest: a.cfg.CodePointFile()},
		"nspl":      {URL: a.cfg.NSPLURL, Dest: a.cfg.NSPLFile()},
		"osm":       {URL: a.cfg.OSMURL, Dest: a.cfg.OSMFile()},
	}
}

// track records a source-run transition; tracking is a side effect and must
// never mask the pipeline's own error.
func (a *app) track(ctx context.Context, name string, upd store.SourceUpdate) {
	if err := a.st.UpdateSourceRun(ctx, name, upd); err != nil {
		log.Printf("source tracking update failed: source=%s err=%v", name, err)
	}
}

func (a *app) fail(ctx context.Context, name string, err error) {
	msg := err.Error()
	a.track(ctx, name, store.SourceUpdate{Status: store.StatusFailed, ErrorMessage: &msg})
}

func (a *app) runDownload(ctx context.Context, sourceName string, force bool) error {
	targets := a.sources()
	if sourceName != "" && sourceName != "all" {
		src, ok := targets[sourceName]
		if !ok {
			return fmt.Errorf("unknown source %q (choose codepoint, nspl, osm)", sourceName)
		}
		targets = map[string]download.Source{sourceName: src}
	}

	for name := range targets {
		a.track(ctx, name, store.SourceUpdate{Status: store.StatusDownloading})
	}

	client := &http.Client{Timeout: a.cfg.DownloadTimeout}
	digests, err := download.Fetch(ctx, client, targets, force)

	// Successful files stay on disk and keep their hash even when a
	// sibling download failed, so a re-run can pick up where it left off.
	for name, digest := range digests {
		a.track(ctx, name, store.SourceUpdate{Status: store.StatusPending, FileHash: &digest})
	}
	if err != nil {
		for name := range targets {
			if _, ok := digests[name]; !ok {
				a.fail(ctx, name, err)
			}
		}
		return err
	}

	log.Printf("downloaded %d source(s)", len(digests))
	return nil
}

func (a *app) runLoadPostcodes(ctx context.Context, truncate bool) error {
	if truncate {
		if err := a.st.TruncatePostcodes(ctx); err != nil {
			return err
		}
		log.Printf("truncated postcodes table")
	}

	// Phase 1: coordinates.
	a.track(ctx, "codepoint", store.SourceUpdate{Status: store.StatusIngesting})
	cp, err := source.OpenCodePoint(a.cfg.CodePointFile(), a.cfg.BatchSize)
	if err != nil {
		a.fail(ctx, "codepoint", err)
		return err
	}
	cpResult, err := load.Run[record.Coordinate](ctx, cp, a.st.UpsertCoordinatePostcodes, "codepoint")
	cp.Close()
	if err != nil {
		a.fail(ctx, "codepoint", err)
		return err
	}
	a.track(ctx, "codepoint", store.SourceUpdate{Status: store.StatusCompleted, RecordCount: &cpResult.Loaded})

	// Phase 2: admin hierarchy merged onto the same rows.
	a.track(ctx, "nspl", store.SourceUpdate{Status: store.StatusIngesting})
	admin, err := source.OpenAdmin(a.cfg.NSPLFile(), a.cfg.BatchSize)
	if err != nil {
		a.fail(ctx, "nspl", err)
		return err
	}
	adminResult, err := load.Run[record.Admin](ctx, admin, a.st.UpsertAdminPostcodes, "nspl")
	admin.Close()
	if err != nil {
		a.fail(ctx, "nspl", err)
		return err
	}
	a.track(ctx, "nspl", store.SourceUpdate{Status: store.StatusCompleted, RecordCount: &adminResult.Loaded})

	log.Printf("postcodes loaded: coordinates=%d admin=%d", cpResult.Loaded, adminResult.Loaded)
	return nil
}

func (a *app) runLoadAddresses(ctx context.Context, truncate bool, batchSize int) error {
	if truncate {
		if err := a.st.TruncateAddresses(ctx); err != nil {
			return err
		}
		log.Printf("truncated addresses table")
	}

	bs := a.cfg.BatchSize
	if batchSize > 0 {
		bs = batchSize
	}

	a.track(ctx, "osm", store.SourceUpdate{Status: store.StatusIngesting})
	sc, err := source.OpenOSM(ctx, a.cfg.OSMFile(), source.OSMOptions{
		BatchSize: bs,
		IndexMode: a.cfg.OSMIndexMode,
		IndexDir:  a.cfg.DataDir,
	})
	if err != nil {
		a.fail(ctx, "osm", err)
		return err
	}
	result, err := load.Run[record.Address](ctx, sc, a.st.InsertAddresses, "osm")
	if err != nil {
		a.fail(ctx, "osm", err)
		return err
	}

	located, err := a.st.BackfillAddressLocations(ctx)
	if err != nil {
		a.fail(ctx, "osm", err)
		return err
	}
	log.Printf("address locations computed: %d", located)

	a.track(ctx, "osm", store.SourceUpdate{Status: store.StatusCompleted, RecordCount: &result.Loaded})
	log.Printf("addresses loaded: %d", result.Loaded)
	return nil
}

func (a *app) runMerge(ctx context.Context) error {
	sum, err := a.st.Summarize(ctx)
	if err != nil {
		return err
	}
	if sum.Postcodes == 0 {
		return &fault.PipelineError{Msg: "no postcodes loaded; run load-postcodes first"}
	}
	if sum.Addresses == 0 {
		return &fault.PipelineError{Msg: "no addresses loaded; run load-addresses first"}
	}

	linked, err := a.st.LinkAddresses(ctx)
	if err != nil {
		return err
	}
	scored, err := a.st.ScoreAddresses(ctx)
	if err != nil {
		return err
	}
	deduped, err := a.st.DeduplicateAddresses(ctx)
	if err != nil {
		return err
	}

	log.Printf("merge complete: linked=%d scored=%d deduplicated=%d", linked, scored, deduped)
	return nil
}

func (a *app) runStatus(ctx context.Context) error {
	sum, err := a.st.Summarize(ctx)
	if err != nil {
		return err
	}

	linkRate := 0.0
	if sum.Addresses > 0 {
		linkRate = float64(sum.Linked) / float64(sum.Addresses) * 100
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "postcodes\t%d\n", sum.Postcodes)
	fmt.Fprintf(w, "addresses\t%d\n", sum.Addresses)
	fmt.Fprintf(w, "linked to postcode\t%d (%.1f%%)\n", sum.Linked, linkRate)
	fmt.Fprintf(w, "complete addresses\t%d\n", sum.Complete)
	fmt.Fprintf(w, "avg confidence\t%.3f\n", sum.AvgConfidence)
	w.Flush()

	runs, err := a.st.ListSourceRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tRECORDS\tHASH")
	for _, r := range runs {
		count := "-"
		if r.RecordCount != nil {
			count = fmt.Sprintf("%d", *r.RecordCount)
		}
		hash := "-"
		if r.FileHash != nil && len(*r.FileHash) >= 12 {
			hash = (*r.FileHash)[:12] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.SourceName, r.Status, count, hash)
	}
	return w.Flush()
}

func (a *app) runAll(ctx context.Context, forceDownload bool) error {
	log.Printf("starting full ingestion pipeline")

	if err := a.runDownload(ctx, "all", forceDownload); err != nil {
		return err
	}
	if err := a.runLoadPostcodes(ctx, false); err != nil {
		return err
	}
	if err := a.runLoadAddresses(ctx, false, 0); err != nil {
		return err
	}
	if err := a.runMerge(ctx); err != nil {
		return err
	}
	if err := a.runStatus(ctx); err != nil {
		return err
	}

	log.Printf("pipeline complete")
	return nil
}
