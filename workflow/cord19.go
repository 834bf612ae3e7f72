package workflow

import "github.com/scholarlab/harvest/biblio"

// Cord19Row is one row of the CORD-19 metadata CSV, reduced to the columns
// the harvester consumes.
type Cord19Row struct {
	CordUID      string
	SHA          string
	Title        string
	DOI          string
	PMCID        string
	PMID         string
	License      string
	Abstract     string
	PublishTime  string
	MagID        string
	WHOCovidence string
	ArxivID      string
	URL          string
}

// mergeInto refreshes an entry from the CSV row. Collection-level metadata
// (license, abstract, MAG and WHO identifiers, the sha) follows the weekly
// CORD-19 releases and is always overwritten; strong identifiers only fill
// gaps, as the lookup service's are the better curated ones.
func (row *Cord19Row) mergeInto(entry *biblio.Entry) {
	if row.SHA != "" {
		entry.CordSHA = row.SHA
	}
	if row.License != "" {
		entry.License = row.License
	}
	if row.Abstract != "" {
		entry.Abstract = row.Abstract
	}
	if row.MagID != "" {
		entry.MAGID = row.MagID
	}
	if row.WHOCovidence != "" {
		entry.WHOCovidence = row.WHOCovidence
	}
	if row.DOI != "" && entry.DOI == "" {
		entry.DOI = biblio.CleanDOI(row.DOI)
	}
	if row.PMCID != "" && entry.PMCID == "" {
		entry.PMCID = row.PMCID
	}
	if row.PMID != "" && entry.PMID == "" {
		entry.PMID = row.PMID
	}
	if row.ArxivID != "" && entry.ArxivID == "" {
		entry.ArxivID = row.ArxivID
	}
}
