package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// PMCRecord locates the open-access archive of one PMC article within the
// NCBI bulk FTP area.
type PMCRecord struct {
	Subpath string `json:"subpath"`
	PMID    string `json:"pmid"`
	License string `json:"license"`
}

// FetchFunc retrieves |url| into the local file |dest|.
type FetchFunc func(ctx context.Context, url, dest string) error

// BuildPMCMap opens the read-only PMC map under |resourceDir|, building it
// first when absent. The build reads the NCBI OA file list, fetching it with
// |fetch| if the file itself is missing, and is performed at most once per
// workspace: an existing map directory short-circuits it.
func BuildPMCMap(ctx context.Context, resourceDir, listURL string, fetch FetchFunc) (*Map, error) {
	var mapDir = filepath.Join(resourceDir, PMCMap)
	if _, err := os.Stat(mapDir); err == nil {
		return OpenReadOnly(resourceDir, PMCMap)
	}

	var listPath = filepath.Join(resourceDir, "oa_file_list.txt")
	if _, err := os.Stat(listPath); err != nil {
		if err = os.MkdirAll(resourceDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", resourceDir, err)
		}
		log.WithField("url", listURL).Info("downloading the PMC OA file list")
		if err = fetch(ctx, listURL, listPath); err != nil {
			return nil, fmt.Errorf("fetching PMC OA file list: %w", err)
		}
	}

	var m, err = Open(resourceDir, PMCMap)
	if err != nil {
		return nil, err
	}
	if err = fillPMCMap(m, listPath); err != nil {
		m.Close()
		return nil, err
	}
	m.Close()

	return OpenReadOnly(resourceDir, PMCMap)
}

func fillPMCMap(m *Map, listPath string) error {
	var f, err = os.Open(listPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", listPath, err)
	}
	defer f.Close()

	log.WithField("list", listPath).Info("building the PMC resource map (done only one time)")

	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)

	var lineNo, added int
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			// First line is a timestamp.
			continue
		}
		var row = strings.Split(scanner.Text(), "\t")
		if len(row) < 5 {
			log.WithFields(log.Fields{"line": lineNo, "columns": len(row)}).
				Warn("malformed line in PMC OA file list")
			continue
		}
		// Columns: subpath, citation, PMC ID, PMID (optional), license.
		var value, _ = json.Marshal(PMCRecord{
			Subpath: row[0],
			PMID:    row[3],
			License: row[4],
		})
		if err = m.Put(row[2], value); err != nil {
			return err
		}
		added++
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", listPath, err)
	}
	log.WithField("entries", added).Info("built the PMC resource map")
	return nil
}

// GetPMCRecord looks up |pmcid| in the PMC map. It returns nil when unknown.
func GetPMCRecord(m *Map, pmcid string) (*PMCRecord, error) {
	var b, err = m.Get(pmcid)
	if err != nil || b == nil {
		return nil, err
	}
	var rec = new(PMCRecord)
	if err = json.Unmarshal(b, rec); err != nil {
		return nil, &Error{Map: PMCMap, Op: "decode", Key: pmcid, Err: err}
	}
	return rec, nil
}
