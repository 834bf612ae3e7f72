// Package workflow drives one article entry through the harvesting state
// machine: metadata lookup, open-access resolution, full-text download,
// structuring, thumbnails, persistence and publication.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/fetch"
	"github.com/scholarlab/harvest/grobid"
	"github.com/scholarlab/harvest/lookup"
	"github.com/scholarlab/harvest/oa"
	"github.com/scholarlab/harvest/publish"
	"github.com/scholarlab/harvest/store"
)

// Options toggle the optional derivation steps of the workflow.
type Options struct {
	// Grobid enables full-text structuring of downloaded PDFs.
	Grobid bool
	// Annotation enables reference-annotation JSON generation.
	Annotation bool
	// Thumbnail enables front-page thumbnail generation.
	Thumbnail bool
}

// Harvester holds the collaborators of the per-entry workflow. All of them
// are safe for concurrent use; the scratch directory is shared but every
// worker only touches files derived from its own entry id.
type Harvester struct {
	Workspace  *store.Workspace
	Lookup     *lookup.Client
	Resolver   *oa.Resolver
	Downloader *fetch.Downloader
	Grobid     *grobid.Client
	Publisher  *publish.Publisher

	// Scratch is the working directory where artifacts land before
	// publication.
	Scratch string
	// LegacyPath is a previous harvest tree whose NLM files are reused.
	LegacyPath string

	Options Options
}

// Seed describes one identifier occurrence from the input source, bound to
// the entry id it was assigned (or previously resolved to).
type Seed struct {
	// ID is the entry id: a fresh or recovered UUID, or the cord_uid.
	ID string

	DOI   string
	PMID  string
	PMCID string

	// Cord carries the CORD-19 metadata row, when harvesting that corpus.
	Cord *Cord19Row
	// MetadataOnly restricts processing to a metadata refresh: merge the
	// CORD-19 row into the stored entry, re-index and persist, with no
	// structural work. It is the CORD-19 resumability path.
	MetadataOnly bool
}

// Process runs at most one traversal of the workflow for |seed|. Failures of
// individual steps are logged and leave the corresponding state flag false;
// only storage errors propagate, aborting this entry but not the harvest.
func (h *Harvester) Process(ctx context.Context, seed Seed) error {
	var entry, err = h.loadOrSynthesize(ctx, seed)
	if err != nil {
		return err
	}
	if err = h.Workspace.IndexIdentifiers(entry); err != nil {
		return err
	}
	if seed.MetadataOnly {
		return h.Workspace.PutEntry(entry)
	}
	return h.processTask(ctx, entry)
}

// loadOrSynthesize recovers the stored entry of the seed, or builds a fresh
// one from the metadata lookup service. CORD-19 rows refresh stored
// metadata even when the entry already exists.
func (h *Harvester) loadOrSynthesize(ctx context.Context, seed Seed) (*biblio.Entry, error) {
	var entry, err = h.Workspace.GetEntry(seed.ID)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		entry = h.Lookup.Metadata(ctx, lookup.Query{
			DOI:   seed.DOI,
			PMID:  seed.PMID,
			PMCID: seed.PMCID,
		})
		if entry == nil {
			entry = new(biblio.Entry)
			if seed.Cord != nil {
				entry.Title = seed.Cord.Title
				entry.Year = seed.Cord.PublishTime
			}
		}
	}
	entry.ID = seed.ID

	if seed.DOI != "" {
		entry.DOI = seed.DOI
	}
	if seed.PMID != "" && entry.PMID == "" {
		entry.PMID = seed.PMID
	}
	if seed.PMCID != "" && entry.PMCID == "" {
		entry.PMCID = seed.PMCID
	}
	if seed.Cord != nil {
		seed.Cord.mergeInto(entry)
	}

	log.WithFields(log.Fields{"id": entry.ID, "doi": entry.DOI}).Debug("processing entry")
	return entry, nil
}

// processTask advances the entry through resolution, download, structuring
// and thumbnail steps, then persists and publishes it. State flags only ever
// transition false to true here, so interrupted entries resume from their
// earliest incomplete step on the next run.
func (h *Harvester) processTask(ctx context.Context, entry *biblio.Entry) error {
	var pdfFile = h.scratchFile(entry.ID, biblio.SuffixPDF)

	if !entry.HasValidOAURL || !entry.HasValidPDF {
		if url := h.Resolver.Resolve(ctx, entry); url != "" {
			entry.OALink = url
			entry.HasValidOAURL = true
		}
	}

	if !entry.HasValidPDF && entry.OALink != "" {
		h.reuseLegacyNLM(entry.ID)
		h.acquirePDF(ctx, entry, pdfFile)
		if fetch.IsValid(pdfFile, "pdf") {
			entry.HasValidPDF = true
		}
	}

	if h.Options.Grobid && entry.HasValidPDF {
		h.structure(ctx, entry, pdfFile)
	}

	if h.Options.Thumbnail && !entry.HasValidThumbnail && entry.HasValidPDF {
		generateThumbnails(ctx, pdfFile)
		if fetch.IsValid(h.scratchFile(entry.ID, biblio.SuffixThumbSmall), "png") {
			entry.HasValidThumbnail = true
		}
	}

	entry.DataPath = biblio.StoragePath(entry.ID)

	if err := h.persist(entry); err != nil {
		return err
	}
	if err := h.Publisher.Publish(ctx, entry.ID); err != nil {
		log.WithFields(log.Fields{"id": entry.ID, "err": err}).
			Error("publishing entry artifacts failed")
	}
	entriesProcessed.WithLabelValues(outcomeLabel(entry)).Inc()
	return nil
}

// acquirePDF materializes the resolved OA link as a scratch PDF: a local
// file is copied, a PMC archive is downloaded and unpacked, anything else is
// downloaded directly.
func (h *Harvester) acquirePDF(ctx context.Context, entry *biblio.Entry, pdfFile string) {
	var url = entry.OALink

	switch {
	case strings.HasPrefix(url, "file://"):
		if err := copyFile(strings.TrimPrefix(url, "file://"), pdfFile); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "url": url, "err": err}).
				Warn("copying local full text failed")
		}
	case strings.HasSuffix(url, ".tar.gz"):
		var archive = h.scratchFile(entry.ID, ".tar.gz")
		if err := h.Downloader.Download(ctx, url, archive); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "url": url, "err": err}).
				Warn("downloading PMC archive failed")
			return
		}
		if err := fetch.ExtractPMCArchive(archive); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "archive": archive, "err": err}).
				Warn("unpacking PMC archive failed")
		}
	default:
		if err := h.Downloader.Download(ctx, url, pdfFile); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "url": url, "err": err}).
				Warn("downloading full text failed")
		}
	}
}

// structure runs the GROBID calls still missing for the entry. A failed call
// leaves its flag false and the next run retries it.
func (h *Harvester) structure(ctx context.Context, entry *biblio.Entry, pdfFile string) {
	if !entry.HasValidTEI {
		var teiFile = h.scratchFile(entry.ID, biblio.SuffixTEI)
		if err := h.Grobid.ProcessFulltext(ctx, pdfFile, teiFile); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "err": err}).Warn("structuring failed")
		} else if fetch.IsValid(teiFile, "xml") {
			entry.HasValidTEI = true
		}
	}
	if h.Options.Annotation && !entry.HasValidRefAnnotation {
		var annotationFile = h.scratchFile(entry.ID, biblio.SuffixRefAnnotations)
		if err := h.Grobid.Annotate(ctx, pdfFile, annotationFile); err != nil {
			log.WithFields(log.Fields{"id": entry.ID, "err": err}).Warn("reference annotation failed")
		} else if fetch.IsValid(annotationFile, "json") {
			entry.HasValidRefAnnotation = true
		}
	}
}

// reuseLegacyNLM copies an NLM file archived by a previous harvest into
// scratch, so it is re-published beside the freshly acquired PDF.
func (h *Harvester) reuseLegacyNLM(id string) {
	if h.LegacyPath == "" {
		return
	}
	var legacy = filepath.Join(
		h.LegacyPath, filepath.FromSlash(biblio.StoragePath(id)), id+biblio.SuffixNXML)
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	if err := copyFile(legacy, h.scratchFile(id, biblio.SuffixNXML)); err != nil {
		log.WithFields(log.Fields{"id": id, "err": err}).Warn("reusing legacy NLM file failed")
	}
}

// persist writes the JSON sidecar into scratch and stores the same bytes in
// the entry map.
func (h *Harvester) persist(entry *biblio.Entry) error {
	var b, err = entry.MarshalJSON()
	if err != nil {
		return &store.Error{Map: store.EntriesMap, Op: "encode", Key: entry.ID, Err: err}
	}
	if err = os.WriteFile(h.scratchFile(entry.ID, biblio.SuffixJSON), b, 0o644); err != nil {
		return fmt.Errorf("writing entry sidecar: %w", err)
	}
	return h.Workspace.Entries.Put(entry.ID, b)
}

// NeedsReprocess reports whether a stored entry should be revisited by a
// reprocess run under the given options.
func NeedsReprocess(entry *biblio.Entry, opts Options) bool {
	if !entry.HasValidOAURL || !entry.HasValidPDF || (opts.Grobid && !entry.HasValidTEI) {
		return true
	}
	if opts.Thumbnail && !entry.HasValidThumbnail {
		return true
	}
	if opts.Annotation && !entry.HasValidRefAnnotation {
		return true
	}
	return false
}

func (h *Harvester) scratchFile(id, suffix string) string {
	return filepath.Join(h.Scratch, id+suffix)
}

func outcomeLabel(entry *biblio.Entry) string {
	switch {
	case !entry.HasValidOAURL:
		return "no_oa_url"
	case !entry.HasValidPDF:
		return "no_pdf"
	default:
		return "success"
	}
}

func copyFile(src, dest string) error {
	var in, err = os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// IsStorageError reports whether |err| is a failure of the persistent maps,
// which aborts the current entry.
func IsStorageError(err error) bool {
	var storeErr *store.Error
	return errors.As(err, &storeErr)
}
