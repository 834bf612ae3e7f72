package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/scholarlab/harvest/biblio"
)

var green = color.New(color.FgGreen).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()

// Stats are the diagnostic counts over the workspace maps. The invalid
// counts cascade: an entry with no OA URL also counts as having no PDF and
// no TEI.
type Stats struct {
	Total        int
	FullyValid   int
	InvalidOAURL int
	InvalidPDF   int
	InvalidTEI   int

	// Filled by the full diagnostic only.
	TotalIdentifiers int
	MissingEntries   int
	GrobidTEIFiles   int
	Pub2TEIFiles     int
	AnyTEIFiles      int
}

// Diagnostic reports harvest completeness. The quick form counts state flags
// over the entry map; the full form additionally cross-checks the identifier
// map against the entry map and walks the storage tree counting structured
// XML files from either conversion pipeline.
func (r *Reporter) Diagnostic(full bool) (Stats, error) {
	var stats Stats

	var err = r.rangeEntries(func(entry *biblio.Entry, _ []byte) error {
		stats.Total++
		switch {
		case !entry.HasValidOAURL:
			stats.InvalidOAURL++
			stats.InvalidPDF++
			stats.InvalidTEI++
		case !entry.HasValidPDF:
			stats.InvalidPDF++
			stats.InvalidTEI++
		case !entry.HasValidTEI:
			stats.InvalidTEI++
		default:
			stats.FullyValid++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if full {
		if err = r.fullDiagnostic(&stats); err != nil {
			return stats, err
		}
	}
	r.printStats(stats, full)
	return stats, nil
}

// fullDiagnostic detects silent failures: identifiers resolving to ids with
// no stored entry, and the on-disk census of structured XML files.
func (r *Reporter) fullDiagnostic(stats *Stats) error {
	var seen = make(map[string]struct{})
	var err = r.Workspace.UUIDs.Range(func(_, value []byte) error {
		var id = string(value)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			stats.TotalIdentifiers++
		}
		var entry, err = r.Workspace.Entries.Get(id)
		if err != nil {
			return err
		}
		if entry == nil {
			stats.MissingEntries++
		}
		return nil
	})
	if err != nil {
		return err
	}

	return filepath.WalkDir(r.DataPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, biblio.SuffixJSON) {
			return err
		}
		var base = strings.TrimSuffix(path, biblio.SuffixJSON)
		var grobidTEI = fileExists(base + biblio.SuffixTEI)
		var pub2TEI = fileExists(base + ".pub2tei.tei.xml")

		if grobidTEI {
			stats.GrobidTEIFiles++
		}
		if pub2TEI {
			stats.Pub2TEIFiles++
		}
		if grobidTEI || pub2TEI {
			stats.AnyTEIFiles++
		}
		return nil
	})
}

func (r *Reporter) printStats(stats Stats, full bool) {
	var w = r.out()
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, "total entries:", stats.Total)
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, "total fully successful entries:", green(stats.FullyValid),
		"entries with valid OA URL and PDF and TEI XML")
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, "total invalid OA URL:", red(stats.InvalidOAURL))
	fmt.Fprintln(w, "total entries with valid OA URL:", stats.Total-stats.InvalidOAURL)
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, "total invalid PDF:", red(stats.InvalidPDF))
	fmt.Fprintln(w, "total entries with successfully downloaded PDF:", stats.Total-stats.InvalidPDF)
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, "total invalid TEI:", red(stats.InvalidTEI))
	fmt.Fprintln(w, "total entries with successfully converted TEI XML:", stats.Total-stats.InvalidTEI)
	fmt.Fprintln(w, "---")

	if full {
		fmt.Fprintln(w, "total identifiers:", stats.TotalIdentifiers)
		fmt.Fprintln(w, "total missing entries in metadata map:", red(stats.MissingEntries))
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w, "total entries with GROBID TEI file:", stats.GrobidTEIFiles)
		fmt.Fprintln(w, "total entries with Pub2TEI TEI file:", stats.Pub2TEIFiles)
		fmt.Fprintln(w, "total entries with at least one TEI file:", stats.AnyTEIFiles)
		fmt.Fprintln(w, "---")
	}
}

func fileExists(path string) bool {
	var info, err = os.Stat(path)
	return err == nil && !info.IsDir()
}
