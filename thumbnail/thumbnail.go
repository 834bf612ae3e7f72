// Package thumbnail renders front-page PNG thumbnails of harvested PDFs by
// shelling out to the ImageMagick convert tool.
package thumbnail

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// sizes are the generated thumbnail heights in pixels, by suffix.
var sizes = []struct {
	suffix string
	height string
}{
	{"-thumb-small.png", "x150"},
	{"-thumb-medium.png", "x300"},
	{"-thumb-large.png", "x500"},
}

// VerifyDependencies probes for the convert binary. A miss degrades
// thumbnail generation but not the harvest.
func VerifyDependencies() error {
	if _, err := exec.LookPath("convert"); err != nil {
		return fmt.Errorf("ImageMagick convert is not available: %w", err)
	}
	return nil
}

// Generate renders the three thumbnails of the first page of |pdfFile|,
// named after the PDF with the .pdf suffix replaced. Individual failures are
// logged and skipped: a missing thumbnail is recoverable on a later run.
func Generate(ctx context.Context, pdfFile string) {
	for _, size := range sizes {
		var output = strings.TrimSuffix(pdfFile, ".pdf") + size.suffix

		// Page [0] only, flattened, rasterized at 200 DPI.
		var cmd = exec.CommandContext(ctx, "convert",
			"-quiet", "-density", "200", "-thumbnail", size.height, "-flatten",
			pdfFile+"[0]", output)

		if out, err := cmd.CombinedOutput(); err != nil {
			log.WithFields(log.Fields{
				"pdf":    pdfFile,
				"output": output,
				"err":    err,
				"stderr": strings.TrimSpace(string(out)),
			}).Error("thumbnail generation failed")
		}
	}
}
