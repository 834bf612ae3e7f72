package fetch

import (
	"bytes"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// EnsureDecompressed checks whether |file| is gzip-compressed and, if so,
// replaces it in place with the decompressed content. It reports false when
// the file is missing or empty, or when decompression fails.
func EnsureDecompressed(file string) bool {
	var info, err = os.Stat(file)
	if err != nil || info.Size() == 0 {
		return false
	}
	mime, err := mimetype.DetectFile(file)
	if err != nil {
		log.WithFields(log.Fields{"file": file, "err": err}).Error("sniffing file type failed")
		return false
	}
	if !mime.Is("application/gzip") {
		return true
	}

	var tmp = file + ".decompressed"
	if err = decompressTo(file, tmp); err != nil {
		log.WithFields(log.Fields{"file": file, "err": err}).Error("decompression failed")
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithFields(log.Fields{"file": tmp, "err": rmErr}).
				Error("removing temporary decompressed file failed")
		}
		return false
	}
	if err = os.Rename(tmp, file); err != nil {
		log.WithFields(log.Fields{"file": file, "err": err}).
			Error("replacement of decompressed file failed")
		os.Remove(tmp)
		return false
	}
	return true
}

// maybeGunzip decompresses an in-memory response body carrying the gzip
// magic, and returns it unchanged otherwise or when decompression fails.
func maybeGunzip(body []byte) []byte {
	if !bytes.HasPrefix(body, []byte{0x1f, 0x8b}) {
		return body
	}
	var gz, err = gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return body
	}
	plain, err := io.ReadAll(gz)
	if err != nil {
		return body
	}
	return plain
}

func decompressTo(src, dest string) error {
	var in, err = os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, gz); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
