package fetch

import (
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// IsValid reports whether |file| exists, is non-empty, and sniffs to the
// expected content kind. Recognized kinds are "pdf", "xml", "png" and
// "json"; any other kind is matched as "application/<kind>".
func IsValid(file, kind string) bool {
	var info, err = os.Stat(file)
	if err != nil || info.Size() == 0 {
		return false
	}
	mime, err := mimetype.DetectFile(file)
	if err != nil {
		return false
	}
	switch kind {
	case "xml":
		return mime.Is("application/xml") || mime.Is("text/xml")
	case "png":
		return mime.Is("image/png")
	default:
		return mime.Is("application/" + kind)
	}
}
