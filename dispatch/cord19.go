package dispatch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/workflow"
)

// cord19Aliases maps historical CORD-19 CSV header names onto the modern
// column set. Weekly releases renamed several columns over time.
var cord19Aliases = map[string]string{
	"Microsoft Academic Paper ID": "mag_id",
	"WHO #Covidence":              "who_covidence_id",
	"pmid":                        "pubmed_id",
}

// HarvestCord19 processes the CORD-19 metadata CSV. Entries are keyed by
// their cord_uid. Already-seen rows are not re-harvested structurally, but
// their metadata is refreshed from the current release of the CSV.
func (d *Dispatcher) HarvestCord19(ctx context.Context, path string) error {
	var f, err = os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows, cols, readErr = newCord19Reader(f)
	if readErr != nil {
		return fmt.Errorf("reading %s: %w", path, readErr)
	}

	var batch []workflow.Seed
	var total, refreshed int

	for {
		record, err := rows.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var row = cols.row(record)
		if row.CordUID == "" {
			continue
		}
		total++

		var seed = workflow.Seed{
			ID:    row.CordUID,
			DOI:   biblio.CleanDOI(row.DOI),
			PMID:  row.PMID,
			PMCID: row.PMCID,
			Cord:  row,
		}

		// Resume check: recognize the row under its cord_uid or its DOI.
		// Known rows still get a metadata refresh from this release.
		for _, ident := range []string{row.CordUID, seed.DOI} {
			if ident == "" {
				continue
			}
			known, err := d.Workspace.ResolveIdentifier(ident)
			if err != nil {
				return err
			}
			if known != "" {
				seed.ID = known
				seed.MetadataOnly = true
				refreshed++
				break
			}
		}

		batch = append(batch, seed)
		if len(batch) == d.BatchSize {
			if err = d.runBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err = d.runBatch(ctx, batch); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"input":     path,
		"total":     total,
		"refreshed": refreshed,
	}).Info("CORD-19 harvest pass finished")
	return nil
}

// cord19Columns indexes the CSV columns of interest, alias-normalized.
type cord19Columns map[string]int

// newCord19Reader reads the header row and returns a reader positioned at
// the first data row.
func newCord19Reader(r io.Reader) (*csv.Reader, cord19Columns, error) {
	var rows = csv.NewReader(r)
	rows.FieldsPerRecord = -1

	var header, err = rows.Read()
	if err != nil {
		return nil, nil, err
	}
	var cols = make(cord19Columns)
	for i, name := range header {
		if canonical, ok := cord19Aliases[name]; ok {
			name = canonical
		}
		cols[name] = i
	}
	if _, ok := cols["cord_uid"]; !ok {
		return nil, nil, fmt.Errorf("missing cord_uid column in header")
	}
	return rows, cols, nil
}

func (c cord19Columns) get(record []string, name string) string {
	var i, ok = c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func (c cord19Columns) row(record []string) *workflow.Cord19Row {
	return &workflow.Cord19Row{
		CordUID:      c.get(record, "cord_uid"),
		SHA:          c.get(record, "sha"),
		Title:        c.get(record, "title"),
		DOI:          c.get(record, "doi"),
		PMCID:        c.get(record, "pmcid"),
		PMID:         c.get(record, "pubmed_id"),
		License:      c.get(record, "license"),
		Abstract:     c.get(record, "abstract"),
		PublishTime:  c.get(record, "publish_time"),
		MagID:        c.get(record, "mag_id"),
		WHOCovidence: c.get(record, "who_covidence_id"),
		ArxivID:      c.get(record, "arxiv_id"),
		URL:          c.get(record, "url"),
	}
}
