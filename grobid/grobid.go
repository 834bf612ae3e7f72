// Package grobid drives the external structuring service which turns article
// PDFs into TEI XML and coordinate-annotated reference JSON.
package grobid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// processTimeout bounds one structuring call. Large PDFs routinely take tens
// of seconds to process.
const processTimeout = 60 * time.Second

// Client posts PDFs to a GROBID instance.
type Client struct {
	base string
	// sleep is the pause observed after a 503 before the single retry.
	sleep time.Duration

	http *http.Client
}

// NewClient addresses the service at |base| (scheme and host) and |port|,
// which may be empty when the base already carries one. |sleepTime| is the
// 503 backoff in seconds.
func NewClient(base, port string, sleepTime int) *Client {
	var url = strings.TrimSuffix(base, "/")
	if port != "" && port != "0" {
		url += ":" + port
	}
	return &Client{
		base:  url + "/api/",
		sleep: time.Duration(sleepTime) * time.Second,
		http:  &http.Client{Timeout: processTimeout},
	}
}

// IsAlive probes the service health endpoint. It is called once at startup;
// a dead service is reported but doesn't prevent harvesting, as later calls
// fail softly per entry.
func (c *Client) IsAlive(ctx context.Context) bool {
	var req, err = http.NewRequestWithContext(ctx, "GET", c.base+"isalive", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"url": c.base, "err": err}).
			Warn("GROBID service is not reachable")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == 200
}

// ProcessFulltext converts |pdfFile| into a TEI XML document written at
// |output|. Header metadata is consolidated and coordinates are generated
// for the element types used by downstream annotation viewers.
func (c *Client) ProcessFulltext(ctx context.Context, pdfFile, output string) error {
	return c.process(ctx, "processFulltextDocument", pdfFile, output, "application/xml",
		map[string][]string{
			"generateIDs":            {"1"},
			"consolidateHeader":      {"1"},
			"consolidateCitations":   {"0"},
			"includeRawCitations":    {"1"},
			"includeRawAffiliations": {"1"},
			"teiCoordinates":         {"ref", "biblStruct", "persName", "figure", "formula", "s"},
		})
}

// Annotate produces the reference-annotation JSON of |pdfFile| at |output|,
// with citations consolidated against the bibliographical services.
func (c *Client) Annotate(ctx context.Context, pdfFile, output string) error {
	return c.process(ctx, "referenceAnnotations", pdfFile, output, "application/json",
		map[string][]string{
			"consolidateCitations": {"1"},
		})
}

// process posts |pdfFile| to the named service endpoint and writes a 200
// response body to |output|. A 503 means all service threads are busy: sleep
// the configured backoff and retry exactly once. Any other non-200 status is
// logged and dropped, leaving no output file.
func (c *Client) process(ctx context.Context, endpoint, pdfFile, output, accept string, fields map[string][]string) error {
	var status, err = c.post(ctx, endpoint, pdfFile, output, accept, fields)
	if err != nil {
		return err
	}
	if status == http.StatusServiceUnavailable {
		log.WithFields(log.Fields{"endpoint": endpoint, "sleep": c.sleep}).
			Info("GROBID is saturated, retrying once")
		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		if status, err = c.post(ctx, endpoint, pdfFile, output, accept, fields); err != nil {
			return err
		}
	}
	if status != 200 {
		log.WithFields(log.Fields{"endpoint": endpoint, "pdf": pdfFile, "status": status}).
			Error("GROBID processing failed")
		return fmt.Errorf("grobid %s: status %d", endpoint, status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, pdfFile, output, accept string, fields map[string][]string) (int, error) {
	var pdf, err = os.Open(pdfFile)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", pdfFile, err)
	}
	defer pdf.Close()

	var body bytes.Buffer
	var form = multipart.NewWriter(&body)

	var header = textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="input"; filename=%q`, pdfFile))
	header.Set("Content-Type", "application/pdf")
	part, err := form.CreatePart(header)
	if err != nil {
		return 0, fmt.Errorf("building multipart form: %w", err)
	}
	if _, err = io.Copy(part, pdf); err != nil {
		return 0, fmt.Errorf("reading %s: %w", pdfFile, err)
	}
	for field, values := range fields {
		for _, value := range values {
			if err = form.WriteField(field, value); err != nil {
				return 0, fmt.Errorf("building multipart form: %w", err)
			}
		}
	}
	if err = form.Close(); err != nil {
		return 0, fmt.Errorf("building multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.base+endpoint, &body)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return resp.StatusCode, nil
	}

	out, err := os.Create(output)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", output, err)
	}
	if _, err = io.Copy(out, resp.Body); err != nil {
		out.Close()
		return 0, fmt.Errorf("writing %s: %w", output, err)
	}
	return 200, out.Close()
}
