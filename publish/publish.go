// Package publish moves finished artifacts from the scratch area into their
// durable home: a sharded local tree, a Google Cloud Storage bucket, or an
// S3 bucket.
package publish

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/fetch"
)

// Target stores one local file under a destination path relative to the
// storage root or bucket.
type Target interface {
	Put(ctx context.Context, localFile, destPath string) error
}

// Publisher relocates the artifact set of entries out of the scratch
// directory.
type Publisher struct {
	scratch string
	target  Target
}

// NewPublisher publishes artifacts from |scratch| to |target|.
func NewPublisher(scratch string, target Target) *Publisher {
	return &Publisher{scratch: scratch, target: target}
}

// Publish moves every artifact of |id| present in scratch to its sharded
// destination, then removes the scratch copies. The PDF is published only
// when it sniffs as one; other artifacts only need to exist. Scratch files
// are removed even when their publication failed, so that a later reprocess
// starts clean and the state flags alone decide what is redone.
func (p *Publisher) Publish(ctx context.Context, id string) error {
	var destDir = biblio.StoragePath(id)
	var firstErr error

	for _, suffix := range []string{
		biblio.SuffixPDF,
		biblio.SuffixNXML,
		biblio.SuffixTEI,
		biblio.SuffixJSON,
		biblio.SuffixRefAnnotations,
		biblio.SuffixThumbSmall,
		biblio.SuffixThumbMedium,
		biblio.SuffixThumbLarge,
	} {
		var name = id + suffix
		var local = filepath.Join(p.scratch, name)

		if _, err := os.Stat(local); err != nil {
			continue
		}
		if suffix == biblio.SuffixPDF && !fetch.IsValid(local, "pdf") {
			log.WithField("file", local).Warn("not publishing an invalid PDF")
		} else if err := p.target.Put(ctx, local, destDir+name); err != nil {
			log.WithFields(log.Fields{"file": local, "err": err}).
				Error("publishing artifact failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := os.Remove(local); err != nil {
			log.WithFields(log.Fields{"file": local, "err": err}).
				Error("scratch file cleaning failed")
		}
	}
	return firstErr
}

// PutFile publishes a single standalone file (the metadata dump, the
// catalogue) under |destPath|.
func (p *Publisher) PutFile(ctx context.Context, localFile, destPath string) error {
	return p.target.Put(ctx, localFile, destPath)
}
