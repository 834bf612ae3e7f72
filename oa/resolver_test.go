package oa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/store"
)

func newTestPMCMap(t *testing.T) *store.Map {
	t.Helper()
	var resourceDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(resourceDir, "oa_file_list.txt"), []byte(
		"2020-08-24 10:05:12\n"+
			"oa_package/aa/bb/PMC42.tar.gz\tSome Journal. 2020\tPMC42\tPMID:123\tCC BY\n"), 0o644))

	var m, err = store.BuildPMCMap(context.Background(), resourceDir, "unused://", nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestResolverPrefersLocalSources(t *testing.T) {
	var pdfDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "art1.pdf"), []byte("%PDF-"), 0o644))

	var resourceDir = t.TempDir()
	writeElsevierMap(t, resourceDir, "map.csv.gz", "doi,pii,pdf\n10.1/els,,art1.pdf\n")
	elsevier, err := LoadElsevierMap(resourceDir, "map.csv.gz", pdfDir)
	require.NoError(t, err)

	var r = &Resolver{Elsevier: elsevier}
	var url = r.Resolve(context.Background(), &biblio.Entry{ID: "abcdef0123456789", DOI: "10.1/els"})
	require.Equal(t, "file://"+filepath.Join(pdfDir, "art1.pdf"), url)

	// A mapped article whose PDF file is absent does not resolve locally.
	writeElsevierMap(t, resourceDir, "map.csv.gz", "doi,pii,pdf\n10.1/els,,gone.pdf\n")
	elsevier, err = LoadElsevierMap(resourceDir, "map.csv.gz", pdfDir)
	require.NoError(t, err)

	r = &Resolver{Elsevier: elsevier}
	url = r.Resolve(context.Background(), &biblio.Entry{ID: "abcdef0123456789", OALink: "https://agg.example/a.pdf"})
	require.Equal(t, "https://agg.example/a.pdf", url)
}

func TestResolverReusesLegacyTree(t *testing.T) {
	var legacy = t.TempDir()
	var id = "abcdef0123456789"
	var shard = filepath.Join(legacy, filepath.FromSlash(biblio.StoragePath(id)))
	require.NoError(t, os.MkdirAll(shard, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(shard, id+biblio.SuffixPDF), []byte("%PDF-1.4 legacy body"), 0o644))

	var r = &Resolver{LegacyPath: legacy}
	var url = r.Resolve(context.Background(), &biblio.Entry{ID: id})
	require.Equal(t, "file://"+filepath.Join(shard, id+biblio.SuffixPDF), url)

	// An invalid legacy file is not reused.
	require.NoError(t, os.WriteFile(filepath.Join(shard, id+biblio.SuffixPDF), []byte("<html/>"), 0o644))
	url = r.Resolve(context.Background(), &biblio.Entry{ID: id, OALink: "https://agg.example/a.pdf"})
	require.Equal(t, "https://agg.example/a.pdf", url)
}

func TestResolverUsesPMCMap(t *testing.T) {
	var r = &Resolver{
		PMC:        newTestPMCMap(t),
		PMCBaseFTP: "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc/",
	}
	var url = r.Resolve(context.Background(), &biblio.Entry{ID: "abcdef0123456789", PMCID: "PMC42"})
	require.Equal(t, "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_package/aa/bb/PMC42.tar.gz", url)

	url = r.Resolve(context.Background(), &biblio.Entry{ID: "abcdef0123456789", PMCID: "PMC43"})
	require.Equal(t, "", url)
}

func TestResolverFallsBackToUnpaywall(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/10.1/open" {
			w.Write([]byte(`{"best_oa_location": {"url_for_pdf": "https://pub.example/x.pdf"}}`))
		} else {
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var r = &Resolver{
		PMC:        newTestPMCMap(t),
		Unpaywall:  NewClient(server.URL, "t@example.org", pmcBaseWeb),
		PMCBaseFTP: "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc",
	}

	var entry = &biblio.Entry{ID: "abcdef0123456789", DOI: "10.1/open"}
	require.Equal(t, "https://pub.example/x.pdf", r.Resolve(context.Background(), entry))

	// A failed Unpaywall lookup degrades to the aggregated link.
	entry = &biblio.Entry{ID: "abcdef0123456789", DOI: "10.1/missing", OALink: "https://agg.example/a.pdf"}
	require.Equal(t, "https://agg.example/a.pdf", r.Resolve(context.Background(), entry))
}
