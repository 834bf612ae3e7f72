// Package dispatch feeds identifier sources through the entry workflow with
// bounded parallelism and resumability against the identifier map.
package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/store"
	"github.com/scholarlab/harvest/workflow"
)

// taskTimeout is the per-entry deadline within a batch. An entry exceeding
// it is abandoned for this run; its persisted flags let a later run resume.
const taskTimeout = 50 * time.Second

// Processor runs one workflow traversal for a seed. It is the dispatcher's
// view of workflow.Harvester.
type Processor interface {
	Process(ctx context.Context, seed workflow.Seed) error
}

// Dispatcher drives batches of seeds through the workflow.
type Dispatcher struct {
	Processor Processor
	Workspace *store.Workspace
	// Options mirrors the harvester's feature toggles; reprocessing selects
	// entries still incomplete under them.
	Options workflow.Options

	// BatchSize is both the size of submitted groups and the width of the
	// worker pool draining them.
	BatchSize int
}

// HarvestDOIs processes a file holding one DOI per line.
func (d *Dispatcher) HarvestDOIs(ctx context.Context, path string) error {
	return d.harvestLines(ctx, path, func(line string) (workflow.Seed, bool) {
		var doi = biblio.CleanDOI(line)
		return workflow.Seed{DOI: doi}, doi != ""
	})
}

// HarvestPMIDs processes a file holding one PubMed identifier per line.
func (d *Dispatcher) HarvestPMIDs(ctx context.Context, path string) error {
	return d.harvestLines(ctx, path, func(line string) (workflow.Seed, bool) {
		return workflow.Seed{PMID: line}, true
	})
}

// HarvestPMCIDs processes a file holding one PMC identifier per line. A
// literal "pmc" line is a header remnant of NCBI exports and is skipped.
func (d *Dispatcher) HarvestPMCIDs(ctx context.Context, path string) error {
	return d.harvestLines(ctx, path, func(line string) (workflow.Seed, bool) {
		return workflow.Seed{PMCID: line}, line != "pmc"
	})
}

// harvestLines iterates a list file in stable order, skipping identifiers
// already known to the workspace, and submits the rest in batches.
func (d *Dispatcher) harvestLines(ctx context.Context, path string, parse func(string) (workflow.Seed, bool)) error {
	var f, err = os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var batch []workflow.Seed
	var scanned, skipped int

	var scanner = bufio.NewScanner(f)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var seed, ok = parse(line)
		if !ok {
			continue
		}
		scanned++

		var ident = seed.DOI + seed.PMID + seed.PMCID
		known, err := d.Workspace.ResolveIdentifier(ident)
		if err != nil {
			return err
		}
		if known != "" {
			skipped++
			continue
		}
		seed.ID = uuid.NewString()

		batch = append(batch, seed)
		if len(batch) == d.BatchSize {
			if err = d.runBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err = d.runBatch(ctx, batch); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"input":   path,
		"total":   scanned,
		"skipped": skipped,
	}).Info("harvest pass finished")
	return nil
}

// ReprocessFailed revisits every stored entry still short of its terminal
// state under the harvester's options.
func (d *Dispatcher) ReprocessFailed(ctx context.Context) error {
	var batch []workflow.Seed
	var total int

	var err = d.Workspace.Entries.Range(func(key, value []byte) error {
		var entry = new(biblio.Entry)
		if err := entry.UnmarshalJSON(value); err != nil {
			log.WithFields(log.Fields{"id": string(key), "err": err}).
				Error("skipping undecodable entry")
			return nil
		}
		if !workflow.NeedsReprocess(entry, d.Options) {
			return nil
		}
		total++
		batch = append(batch, workflow.Seed{
			ID:    entry.ID,
			DOI:   entry.DOI,
			PMID:  entry.PMID,
			PMCID: entry.PMCID,
		})
		if len(batch) == d.BatchSize {
			var err = d.runBatch(ctx, batch)
			batch = batch[:0]
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err = d.runBatch(ctx, batch); err != nil {
		return err
	}
	log.WithField("total", total).Info("reprocess pass finished")
	return nil
}

// runBatch submits all seeds to a pool as wide as the batch and drains it
// completely before returning. Task failures are logged and absorbed;
// only context cancellation aborts the harvest.
func (d *Dispatcher) runBatch(ctx context.Context, batch []workflow.Seed) error {
	if len(batch) == 0 {
		return nil
	}
	batchesTotal.Inc()

	var group, groupCtx = errgroup.WithContext(ctx)
	for _, seed := range batch {
		var seed = seed
		group.Go(func() error {
			var taskCtx, cancel = context.WithTimeout(groupCtx, taskTimeout)
			defer cancel()

			if err := d.Processor.Process(taskCtx, seed); err != nil {
				tasksTotal.WithLabelValues("failure").Inc()
				log.WithFields(log.Fields{"id": seed.ID, "err": err}).
					Error("entry processing failed")
			} else {
				tasksTotal.WithLabelValues("success").Inc()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
