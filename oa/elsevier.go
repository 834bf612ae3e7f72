// Package oa resolves open-access full-text locations for article entries.
package oa

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// ElsevierMap indexes the Elsevier COVID-19 OA set distributed as a local
// PDF directory plus a gzipped CSV mapping DOI and PII to PDF files.
type ElsevierMap struct {
	pdfDir string
	byKey  map[string]string
}

// LoadElsevierMap reads the map file under |resourceDir|. It returns nil when
// no local PDF set is configured, and an empty usable map when the map file
// itself is absent.
func LoadElsevierMap(resourceDir, mapFile, pdfDir string) (*ElsevierMap, error) {
	if pdfDir == "" {
		return nil, nil
	}
	var m = &ElsevierMap{pdfDir: pdfDir, byKey: make(map[string]string)}
	if mapFile == "" {
		return m, nil
	}

	var path = filepath.Join(resourceDir, mapFile)
	var f, err = os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return nil, fmt.Errorf("opening Elsevier OA map: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}

	var rows = csv.NewReader(gz)
	header, err := rows.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var col = make(map[string]int)
	for i, name := range header {
		col[name] = i
	}
	for _, want := range []string{"doi", "pii", "pdf"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("elsevier OA map %s: missing column %q", path, want)
		}
	}

	for {
		var row, err = rows.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var doi, pii, pdf = row[col["doi"]], row[col["pii"]], row[col["pdf"]]
		if doi != "" {
			m.byKey[strings.ToLower(doi)] = pdf
		}
		if pii != "" {
			m.byKey[pii] = pdf
		}
	}
	log.WithFields(log.Fields{"path": path, "keys": len(m.byKey)}).
		Info("loaded the Elsevier OA map")

	return m, nil
}

// Check returns the local PDF path of an article known to the map by DOI or
// PII, or "" otherwise. DOIs are matched case-insensitively.
func (m *ElsevierMap) Check(doi, pii string) string {
	if m == nil {
		return ""
	}
	if doi != "" {
		if pdf, ok := m.byKey[strings.ToLower(doi)]; ok {
			return filepath.Join(m.pdfDir, pdf)
		}
	}
	if pii != "" {
		if pdf, ok := m.byKey[pii]; ok {
			return filepath.Join(m.pdfDir, pdf)
		}
	}
	return ""
}
