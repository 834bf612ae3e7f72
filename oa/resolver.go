package oa

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/fetch"
	"github.com/scholarlab/harvest/store"
)

// Resolver produces the open-access full-text URL of an entry. Local sources
// are preferred over remote ones, and return file:// URLs.
type Resolver struct {
	// Elsevier is the local Elsevier OA set, or nil.
	Elsevier *ElsevierMap
	// PMC is the read-only PMC OA map, or nil.
	PMC *store.Map
	// Unpaywall queries fresh OA locations by DOI.
	Unpaywall *Client
	// LegacyPath is a previous harvest tree whose PDFs are reused, or "".
	LegacyPath string
	// PMCBaseFTP prefixes archive subpaths from the PMC map.
	PMCBaseFTP string
}

// Resolve returns the best known OA URL for |entry|, trying the local
// Elsevier set, a legacy harvest tree, the PMC OA map, Unpaywall, and lastly
// the aggregated link carried by the entry metadata. It returns "" when no
// source resolves.
func (r *Resolver) Resolve(ctx context.Context, entry *biblio.Entry) string {
	if path := r.Elsevier.Check(entry.DOI, entry.PII); path != "" {
		if _, err := os.Stat(path); err == nil {
			return "file://" + path
		}
	}

	if r.LegacyPath != "" {
		var path = filepath.Join(
			r.LegacyPath, biblio.StoragePath(entry.ID), entry.ID+biblio.SuffixPDF)
		if fetch.IsValid(path, "pdf") {
			return "file://" + path
		}
	}

	if link := r.pmcLink(entry.PMCID); link != "" {
		return link
	}

	if entry.DOI != "" {
		if link, err := r.Unpaywall.BestPDFLink(ctx, entry.DOI); err != nil {
			log.WithFields(log.Fields{"doi": entry.DOI, "err": err}).
				Debug("Unpaywall lookup failed")
		} else if link != "" {
			return link
		}
	}

	return entry.OALink
}

// pmcLink returns the FTP URL of the PMC OA archive for |pmcid|, or "".
func (r *Resolver) pmcLink(pmcid string) string {
	if pmcid == "" || r.PMC == nil {
		return ""
	}
	var rec, err = store.GetPMCRecord(r.PMC, pmcid)
	if err != nil {
		log.WithFields(log.Fields{"pmcid": pmcid, "err": err}).
			Error("PMC OA map lookup failed")
		return ""
	} else if rec == nil {
		log.WithField("pmcid", pmcid).Debug("no PMC OA location")
		return ""
	}
	return strings.TrimSuffix(r.PMCBaseFTP, "/") + "/" + rec.Subpath
}
