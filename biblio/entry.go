// Package biblio models harvested article records and their identifiers.
package biblio

import (
	"encoding/json"
	"fmt"
)

// Artifact suffixes produced for an entry, relative to its id.
const (
	SuffixPDF            = ".pdf"
	SuffixNXML           = ".nxml"
	SuffixTEI            = ".grobid.tei.xml"
	SuffixJSON           = ".json"
	SuffixRefAnnotations = "-ref-annotations.json"
	SuffixThumbSmall     = "-thumb-small.png"
	SuffixThumbMedium    = "-thumb-medium.png"
	SuffixThumbLarge     = "-thumb-large.png"
)

// Entry is the persistent record of one article being harvested.
// Known fields are indexed and interpreted by the harvester; anything else
// returned by a metadata lookup service (authors, journal, issued dates...)
// is carried opaquely in Extra and round-trips through serialization.
type Entry struct {
	ID      string
	DOI     string
	PMID    string
	PMCID   string
	PII     string
	IstexID string
	ArxivID string
	CordSHA string

	Title        string
	Year         string
	Abstract     string
	License      string
	MAGID        string
	WHOCovidence string

	// OALink is the resolved open-access URL of the full text.
	OALink string
	// DataPath is the sharded relative directory holding the entry artifacts,
	// with a trailing separator.
	DataPath string

	HasValidOAURL         bool
	HasValidPDF           bool
	HasValidTEI           bool
	HasValidRefAnnotation bool
	HasValidThumbnail     bool

	Extra map[string]json.RawMessage
}

// MarshalJSON flattens the entry into a single JSON object: pass-through
// metadata first, then known fields on top. Go serializes map keys in sorted
// order, which keeps sidecar files, stored values and dump lines stable.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var doc = make(map[string]interface{}, len(e.Extra)+21)
	for k, v := range e.Extra {
		doc[k] = v
	}

	var put = func(key, value string) {
		if value != "" {
			doc[key] = value
		}
	}
	put("id", e.ID)
	put("DOI", e.DOI)
	put("pmid", e.PMID)
	put("pmcid", e.PMCID)
	put("pii", e.PII)
	put("istexId", e.IstexID)
	put("arxiv_id", e.ArxivID)
	put("cord_sha", e.CordSHA)
	put("title", e.Title)
	put("year", e.Year)
	put("abstract", e.Abstract)
	put("license-simplified", e.License)
	put("MAG_ID", e.MAGID)
	put("WHO_Covidence", e.WHOCovidence)
	put("oaLink", e.OALink)
	put("data_path", e.DataPath)

	doc["has_valid_oa_url"] = e.HasValidOAURL
	doc["has_valid_pdf"] = e.HasValidPDF
	doc["has_valid_tei"] = e.HasValidTEI
	doc["has_valid_ref_annotation"] = e.HasValidRefAnnotation
	doc["has_valid_thumbnail"] = e.HasValidThumbnail

	return json.Marshal(doc)
}

// UnmarshalJSON is the inverse of MarshalJSON: known keys are lifted into
// struct fields, everything else lands in Extra. A known key holding an
// unexpected JSON shape stays in Extra rather than failing the decode.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding entry: %w", err)
	}

	var takeString = func(key string, dst *string) {
		if raw, ok := doc[key]; ok {
			if json.Unmarshal(raw, dst) == nil {
				delete(doc, key)
			}
		}
	}
	var takeBool = func(key string, dst *bool) {
		if raw, ok := doc[key]; ok {
			if json.Unmarshal(raw, dst) == nil {
				delete(doc, key)
			}
		}
	}

	takeString("id", &e.ID)
	takeString("DOI", &e.DOI)
	takeString("pmid", &e.PMID)
	takeString("pmcid", &e.PMCID)
	takeString("pii", &e.PII)
	takeString("istexId", &e.IstexID)
	takeString("arxiv_id", &e.ArxivID)
	takeString("cord_sha", &e.CordSHA)
	takeString("title", &e.Title)
	takeString("year", &e.Year)
	takeString("abstract", &e.Abstract)
	takeString("license-simplified", &e.License)
	takeString("MAG_ID", &e.MAGID)
	takeString("WHO_Covidence", &e.WHOCovidence)
	takeString("oaLink", &e.OALink)
	takeString("data_path", &e.DataPath)

	takeBool("has_valid_oa_url", &e.HasValidOAURL)
	takeBool("has_valid_pdf", &e.HasValidPDF)
	takeBool("has_valid_tei", &e.HasValidTEI)
	takeBool("has_valid_ref_annotation", &e.HasValidRefAnnotation)
	takeBool("has_valid_thumbnail", &e.HasValidThumbnail)

	if len(doc) != 0 {
		e.Extra = doc
	}
	return nil
}

// StrongIdentifiers returns the identifiers under which this entry must be
// indexed in the identifier map, the entry id itself included.
func (e *Entry) StrongIdentifiers() []string {
	var ids []string
	for _, id := range []string{e.DOI, e.PMCID, e.PMID, e.ID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Complete reports whether the entry reached its terminal success state for
// the given feature toggles.
func (e *Entry) Complete(structuring, annotation, thumbnails bool) bool {
	if !e.HasValidOAURL || !e.HasValidPDF {
		return false
	}
	if structuring && !e.HasValidTEI {
		return false
	}
	if annotation && !e.HasValidRefAnnotation {
		return false
	}
	if thumbnails && !e.HasValidThumbnail {
		return false
	}
	return true
}
