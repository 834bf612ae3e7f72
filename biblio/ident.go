package biblio

import "strings"

// CleanDOI trims and lower-cases a DOI, then strips a resolver URL prefix
// when one is present. Only the canonical doi.org and legacy dx.doi.org
// prefixes are recognized, and only when followed by a "10." registrant, so
// that plain URLs mistakenly given as DOIs pass through.
func CleanDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	if strings.HasPrefix(doi, "https://doi.org/10.") {
		doi = strings.TrimPrefix(doi, "https://doi.org/")
	} else if strings.HasPrefix(doi, "http://dx.doi.org/10.") {
		doi = strings.TrimPrefix(doi, "http://dx.doi.org/")
	}
	return doi
}

// StoragePath converts an identifier into its sharded relative directory,
// trailing separator included: "0123456789" becomes "01/23/45/67/0123456789/".
// Identifiers shorter than eight characters are not sharded.
func StoragePath(id string) string {
	if len(id) < 8 {
		return id + "/"
	}
	return id[0:2] + "/" + id[2:4] + "/" + id[4:6] + "/" + id[6:8] + "/" + id + "/"
}
