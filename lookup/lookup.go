// Package lookup aggregates article metadata from a biblio-glutton service,
// with the CrossRef REST API as a registrar-side fallback.
package lookup

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
)

// callTimeout bounds each individual lookup call. Failures are not retried
// here: the workflow resumes an entry with missing metadata on a later run.
const callTimeout = 5 * time.Second

// Query carries the strong identifiers known for an article before lookup.
type Query struct {
	DOI     string
	PMID    string
	PMCID   string
	IstexID string
}

// Client resolves article metadata. A zero GluttonBase disables the
// biblio-glutton leg and goes straight to CrossRef.
type Client struct {
	gluttonBase   string
	crossrefBase  string
	crossrefEmail string

	http *http.Client
}

// NewClient builds a lookup client against the given service bases.
func NewClient(gluttonBase, crossrefBase, crossrefEmail string) *Client {
	return &Client{
		gluttonBase:   gluttonBase,
		crossrefBase:  strings.TrimSuffix(crossrefBase, "/"),
		crossrefEmail: crossrefEmail,
		http: &http.Client{
			Timeout: callTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// gluttonURL is the lookup endpoint of the service, query parameter excluded.
func (c *Client) gluttonURL() string {
	var base = strings.TrimSuffix(c.gluttonBase, "/")
	if strings.HasSuffix(base, "/service") {
		return base + "/lookup?"
	}
	return base + "/service/lookup?"
}

// Metadata returns the aggregated metadata record for the query, trying each
// identifier against biblio-glutton in turn and falling back to CrossRef when
// a DOI is known. It returns nil when nothing resolves.
func (c *Client) Metadata(ctx context.Context, q Query) *biblio.Entry {
	if c.gluttonBase != "" {
		var params = []struct{ key, value string }{
			{"doi", q.DOI},
			{"pmid", q.PMID},
			{"pmc", q.PMCID},
			{"istexid", q.IstexID},
		}
		for _, p := range params {
			if p.value == "" {
				continue
			}
			if entry := c.getEntry(ctx, c.gluttonURL()+p.key+"="+url.QueryEscape(p.value), nil); entry != nil {
				lookupsTotal.WithLabelValues("glutton", "success").Inc()
				return entry
			}
			lookupsTotal.WithLabelValues("glutton", "failure").Inc()
		}
	}

	if q.DOI != "" && c.crossrefBase != "" {
		if entry := c.crossref(ctx, q.DOI); entry != nil {
			lookupsTotal.WithLabelValues("crossref", "success").Inc()
			return entry
		}
		lookupsTotal.WithLabelValues("crossref", "failure").Inc()
	}
	return nil
}

// crossref fetches the registrar record of a DOI. The CrossRef payload nests
// the record under "message" and includes the full reference list, which is
// dropped before return.
func (c *Client) crossref(ctx context.Context, doi string) *biblio.Entry {
	// CrossRef asks politely-identified clients to embed a contact address
	// in the user agent, in exchange for a better service pool.
	var header = http.Header{}
	header.Set("User-Agent",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:81.0) Gecko/20100101 Firefox/81.0 (mailto:"+c.crossrefEmail+")")

	var wrapper struct {
		Message json.RawMessage `json:"message"`
	}
	if !c.getJSON(ctx, c.crossrefBase+"/works/"+doi, header, &wrapper) || wrapper.Message == nil {
		return nil
	}

	var entry = new(biblio.Entry)
	if err := entry.UnmarshalJSON(wrapper.Message); err != nil {
		log.WithFields(log.Fields{"doi": doi, "err": err}).Warn("decoding CrossRef record failed")
		return nil
	}
	delete(entry.Extra, "reference")
	return entry
}

func (c *Client) getEntry(ctx context.Context, url string, header http.Header) *biblio.Entry {
	var entry = new(biblio.Entry)
	if !c.getJSON(ctx, url, header, entry) {
		return nil
	}
	return entry
}

// getJSON performs one GET and decodes a 200 response into |into|. Network
// and decode failures are logged at debug: during a large harvest most
// lookups of less-known identifiers simply miss.
func (c *Client) getJSON(ctx context.Context, url string, header http.Header, into interface{}) bool {
	var req, err = http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		log.WithFields(log.Fields{"url": url, "err": err}).Warn("building lookup request failed")
		return false
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"url": url, "err": err}).Debug("lookup call failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		log.WithFields(log.Fields{"url": url, "status": resp.StatusCode}).Debug("lookup miss")
		return false
	}
	if err = json.NewDecoder(resp.Body).Decode(into); err != nil {
		log.WithFields(log.Fields{"url": url, "err": err}).Debug("decoding lookup response failed")
		return false
	}
	return true
}

// String renders the query for logging.
func (q Query) String() string {
	var parts []string
	for _, p := range []struct{ k, v string }{
		{"doi", q.DOI}, {"pmid", q.PMID}, {"pmc", q.PMCID}, {"istexid", q.IstexID},
	} {
		if p.v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", p.k, p.v))
		}
	}
	return strings.Join(parts, " ")
}
