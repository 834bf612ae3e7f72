package report

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// DumpMetadata writes one JSON object per line for every stored entry into
// |dumpFile|, and uploads the result when an object store is configured.
// Stored values are already the canonical sorted-key serialization, so they
// are emitted verbatim.
func (r *Reporter) DumpMetadata(ctx context.Context, dumpFile string) error {
	if dumpFile == "" {
		dumpFile = DumpFileName
	}

	var f, err = os.Create(dumpFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dumpFile, err)
	}
	var w = bufio.NewWriter(f)

	var total int
	err = r.Workspace.Entries.Range(func(_, value []byte) error {
		total++
		if _, err := w.Write(value); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dumpFile, err)
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dumpFile, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", dumpFile, err)
	}

	fmt.Fprintf(r.out(), "total number of harvested entries: %d\n", total)
	fmt.Fprintf(r.out(), "-> full metadata dump written in %s\n", dumpFile)
	log.WithFields(log.Fields{"file": dumpFile, "entries": total}).Info("wrote metadata dump")

	if r.Publisher != nil {
		if err = r.Publisher.PutFile(ctx, dumpFile, filepath.Base(dumpFile)); err != nil {
			return fmt.Errorf("uploading %s: %w", dumpFile, err)
		}
	}
	return nil
}
