package fetch

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// ExtractPMCArchive unpacks a PMC OA archive in place: the first PDF member
// becomes <base>.pdf and every NLM .nxml member becomes <base>.nxml, where
// <base> is the archive path without its .tar.gz suffix. Members pass
// through a unique temporary subdirectory so that concurrent extractions of
// archives holding same-named files cannot collide. The archive file is
// removed afterwards. Archives turn into plain tar when the download path
// already decompressed them, so both forms are accepted.
func ExtractPMCArchive(archive string) error {
	if !strings.HasSuffix(archive, ".tar.gz") {
		return fmt.Errorf("%s: not a .tar.gz archive", archive)
	}
	if _, err := os.Stat(archive); err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{"archive": archive, "err": err}).
				Error("deletion of PMC archive file failed")
		}
	}()

	var f, err = os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if mime, err := mimetype.DetectFile(archive); err != nil {
		return fmt.Errorf("sniffing archive: %w", err)
	} else if mime.Is("application/gzip") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("decompressing archive: %w", err)
		}
		reader = gz
	}

	var base = strings.TrimSuffix(archive, ".tar.gz")
	var tmpName = filepath.Base(archive)
	if len(tmpName) > 6 {
		tmpName = tmpName[:6]
	}
	var tmpDir = filepath.Join(filepath.Dir(archive), tmpName)

	var tr = tar.NewReader(reader)
	var pdfFound bool
	for {
		var hdr, err = tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("reading archive %s: %w", archive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var name = filepath.Base(hdr.Name)

		switch {
		case !pdfFound && (strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".PDF")):
			if err = extractMember(tr, tmpDir, name, base+".pdf"); err != nil {
				log.WithFields(log.Fields{"archive": archive, "member": hdr.Name, "err": err}).
					Error("extracting archive member failed")
			} else {
				pdfFound = true
			}
		case strings.HasSuffix(name, ".nxml"):
			if err = extractMember(tr, tmpDir, name, base+".nxml"); err != nil {
				log.WithFields(log.Fields{"archive": archive, "member": hdr.Name, "err": err}).
					Error("extracting archive member failed")
			}
		}
	}

	if !pdfFound {
		log.WithField("archive", archive).Warn("no pdf found in archive")
		archivesTotal.WithLabelValues("no_pdf").Inc()
	} else {
		archivesTotal.WithLabelValues("success").Inc()
	}
	return nil
}

// extractMember copies one tar member through |tmpDir| and renames it to
// |dest|. The temporary directory is removed before returning.
func extractMember(r io.Reader, tmpDir, name, dest string) error {
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.WithFields(log.Fields{"dir": tmpDir, "err": err}).
				Error("deletion of temporary extraction directory failed")
		}
	}()

	var tmp = filepath.Join(tmpDir, name)
	if err := writeFileFrom(r, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
