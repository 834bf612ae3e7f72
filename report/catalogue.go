package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
)

// catalogueLine locates the artifacts of one harvested entry. Paths are the
// flat concatenation of the sharded data path and the file name, relative to
// the storage root.
type catalogueLine struct {
	ID                   string `json:"id"`
	DOI                  string `json:"DOI,omitempty"`
	PMID                 string `json:"pmid,omitempty"`
	PMCID                string `json:"pmcid,omitempty"`
	OALink               string `json:"oaLink,omitempty"`
	PDFFilePath          string `json:"pdf_file_path,omitempty"`
	TEIFilePath          string `json:"tei_file_path,omitempty"`
	JSONMetadataFilePath string `json:"json_metadata_file_path"`
}

// WriteCatalogue writes one JSON line per entry into map.json under the
// data path, listing the entry's identifiers and produced artifact paths.
func (r *Reporter) WriteCatalogue(ctx context.Context) error {
	var path = filepath.Join(r.DataPath, CatalogueFileName)
	var f, err = os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	var w = bufio.NewWriter(f)

	var encoder = json.NewEncoder(w)
	err = r.rangeEntries(func(entry *biblio.Entry, _ []byte) error {
		var line = catalogueLine{
			ID:                   entry.ID,
			DOI:                  entry.DOI,
			PMID:                 entry.PMID,
			PMCID:                entry.PMCID,
			OALink:               entry.OALink,
			JSONMetadataFilePath: entry.DataPath + entry.ID + biblio.SuffixJSON,
		}
		if entry.HasValidPDF && entry.DataPath != "" {
			line.PDFFilePath = entry.DataPath + entry.ID + biblio.SuffixPDF
		}
		if entry.HasValidTEI && entry.DataPath != "" {
			line.TEIFilePath = entry.DataPath + entry.ID + biblio.SuffixTEI
		}
		return encoder.Encode(&line)
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(r.out(), "-> catalogue of harvested resources written in %s\n", path)
	log.WithField("file", path).Info("wrote catalogue")

	if r.Publisher != nil {
		if err = r.Publisher.PutFile(ctx, path, CatalogueFileName); err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
	}
	return nil
}
