package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
)

// CollectionFileName receives the CORD-19 collection statistics.
const CollectionFileName = "collection.json"

// CoverageStats counts full-text availability of CORD-19 entries against the
// official document_parses distribution.
type CoverageStats struct {
	TotalRows      int
	DistinctRows   int
	PMCDerivedJSON int
	PDFDerivedJSON int
	AtLeastOneJSON int
	MissedEntries  int
	ExtraEntries   int
}

// cordCSV iterates the CORD-19 metadata CSV with alias-normalized headers,
// calling |fn| once per row with a column accessor.
func cordCSV(path string, fn func(get func(string) string) error) error {
	var f, err = os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows = csv.NewReader(f)
	rows.FieldsPerRecord = -1

	header, err := rows.Read()
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var cols = make(map[string]int)
	for i, name := range header {
		switch name {
		case "Microsoft Academic Paper ID":
			name = "mag_id"
		case "WHO #Covidence":
			name = "who_covidence_id"
		}
		cols[name] = i
	}

	for {
		record, err := rows.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var get = func(name string) string {
			var i, ok = cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if err = fn(get); err != nil {
			return err
		}
	}
}

// WriteCollectionStats summarizes a CORD-19 harvest: totals and per-year
// distributions of all entries and of entries with a harvested full text,
// written as collection.json beside the dump file.
func (r *Reporter) WriteCollectionStats(cord19CSV string) error {
	var seen = make(map[string]struct{})
	var total, harvested int
	var perYear = make(map[string]int)
	var perYearHarvested = make(map[string]int)

	var err = cordCSV(cord19CSV, func(get func(string) string) error {
		var cordUID = get("cord_uid")
		if cordUID == "" {
			return nil
		}
		if _, dup := seen[cordUID]; dup {
			return nil
		}
		seen[cordUID] = struct{}{}
		total++

		var isHarvested, err = r.hasFullText(cordUID)
		if err != nil {
			return err
		}
		if isHarvested {
			harvested++
		}

		// Publication dates use the ISO 8601 layout; the year is the lead.
		if publishTime := get("publish_time"); publishTime != "" {
			var year = strings.SplitN(publishTime, "-", 2)[0]
			perYear[year]++
			if isHarvested {
				perYearHarvested[year]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var collection = map[string]interface{}{
		"name":        "CORD-19",
		"description": "Collection of Open Access research publications on COVID-19",
		"harvester":   "harvestctl",
		"documents": map[string]interface{}{
			"total_distinct_entries":          total,
			"total_harvested_entries":         harvested,
			"distribution_entries_per_year":   perYear,
			"distribution_harvested_per_year": perYearHarvested,
		},
	}
	var b, _ = json.MarshalIndent(collection, "", "    ")
	if err = os.WriteFile(CollectionFileName, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", CollectionFileName, err)
	}
	fmt.Fprintf(r.out(), "-> collection statistics written in %s\n", CollectionFileName)
	return nil
}

// hasFullText reports whether the entry indexed under |ident| carries any
// harvested full-text artifact.
func (r *Reporter) hasFullText(ident string) (bool, error) {
	var id, err = r.Workspace.ResolveIdentifier(ident)
	if err != nil || id == "" {
		return false, err
	}
	entry, err := r.Workspace.GetEntry(id)
	if err != nil || entry == nil {
		return false, err
	}
	return entry.HasValidPDF || entry.HasValidTEI, nil
}

// CheckCord19Coverage compares the CORD-19 metadata CSV against the official
// document_parses tree: PMC-derived JSON is named by PMC identifier,
// PDF-derived JSON by sha. Rows without any local full text are listed in
// coverage_missed_entries.csv; harvested entries absent from the CSV land in
// coverage_extra_entries.csv.
func (r *Reporter) CheckCord19Coverage(cord19CSV, documentsDir string) (CoverageStats, error) {
	var stats CoverageStats
	var seen = make(map[string]struct{})

	missed, err := os.Create("coverage_missed_entries.csv")
	if err != nil {
		return stats, fmt.Errorf("creating missed-entries file: %w", err)
	}
	defer missed.Close()
	var missedCSV = csv.NewWriter(missed)
	missedCSV.Write([]string{"cord_uid", "sha", "pmcid", "doi"})

	err = cordCSV(cord19CSV, func(get func(string) string) error {
		stats.TotalRows++
		var cordUID = get("cord_uid")
		if cordUID == "" {
			return nil
		}
		if _, dup := seen[cordUID]; dup {
			return nil
		}
		seen[cordUID] = struct{}{}
		stats.DistinctRows++

		var present bool
		if pmcid := get("pmcid"); pmcid != "" &&
			fileExists(filepath.Join(documentsDir, "document_parses", "pmc_json", pmcid+".xml.json")) {
			stats.PMCDerivedJSON++
			present = true
		}
		if sha := get("sha"); sha != "" &&
			fileExists(filepath.Join(documentsDir, "document_parses", "pdf_json", sha+".json")) {
			stats.PDFDerivedJSON++
			present = true
		}
		if present {
			stats.AtLeastOneJSON++
		} else {
			stats.MissedEntries++
			missedCSV.Write([]string{cordUID, get("sha"), get("pmcid"), get("doi")})
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	missedCSV.Flush()
	if err = missedCSV.Error(); err != nil {
		return stats, fmt.Errorf("writing missed-entries file: %w", err)
	}

	extra, err := os.Create("coverage_extra_entries.csv")
	if err != nil {
		return stats, fmt.Errorf("creating extra-entries file: %w", err)
	}
	defer extra.Close()
	var extraCSV = csv.NewWriter(extra)
	extraCSV.Write([]string{"id", "doi", "pmcid"})

	err = r.rangeEntries(func(entry *biblio.Entry, _ []byte) error {
		if _, ok := seen[entry.ID]; ok {
			return nil
		}
		stats.ExtraEntries++
		extraCSV.Write([]string{entry.ID, entry.DOI, entry.PMCID})
		return nil
	})
	if err != nil {
		return stats, err
	}
	extraCSV.Flush()
	if err = extraCSV.Error(); err != nil {
		return stats, fmt.Errorf("writing extra-entries file: %w", err)
	}

	log.WithFields(log.Fields{
		"rows":   stats.TotalRows,
		"missed": stats.MissedEntries,
		"extra":  stats.ExtraEntries,
	}).Info("checked CORD-19 coverage")

	var w = r.out()
	fmt.Fprintln(w, "processed", stats.TotalRows, "articles from CORD-19")
	fmt.Fprintln(w, "total distinct cord id:", stats.DistinctRows)
	fmt.Fprintln(w, "total PMC-derived JSON:", stats.PMCDerivedJSON)
	fmt.Fprintln(w, "total PDF-derived JSON:", stats.PDFDerivedJSON)
	fmt.Fprintln(w, "total entry with at least one JSON:", stats.AtLeastOneJSON)
	return stats, nil
}
