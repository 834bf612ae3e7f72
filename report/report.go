// Package report emits the harvest's user-facing outputs: the consolidated
// metadata dump, the artifact catalogue, diagnostics and CORD-19 coverage.
package report

import (
	"io"
	"os"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/publish"
	"github.com/scholarlab/harvest/store"
)

// DumpFileName is the consolidated metadata dump, written at the workspace
// root.
const DumpFileName = "consolidated_metadata.json"

// CatalogueFileName is the artifact catalogue, written under the data path.
const CatalogueFileName = "map.json"

// Reporter reads the workspace maps and produces reports.
type Reporter struct {
	Workspace *store.Workspace
	// DataPath is the harvest storage root, walked by the full diagnostic.
	DataPath string
	// Publisher uploads finished reports when an object store is
	// configured; nil otherwise.
	Publisher *publish.Publisher

	// Out receives the human-readable reports; os.Stdout when nil.
	Out io.Writer
}

func (r *Reporter) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

// rangeEntries decodes and visits every stored entry.
func (r *Reporter) rangeEntries(fn func(entry *biblio.Entry, raw []byte) error) error {
	return r.Workspace.Entries.Range(func(key, value []byte) error {
		var entry = new(biblio.Entry)
		if err := entry.UnmarshalJSON(value); err != nil {
			return &store.Error{Map: store.EntriesMap, Op: "decode", Key: string(key), Err: err}
		}
		return fn(entry, value)
	})
}
