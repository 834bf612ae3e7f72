package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarlab/harvest/biblio"
	"github.com/scholarlab/harvest/store"
	"github.com/scholarlab/harvest/workflow"
)

// recordingProcessor captures seeds and tracks the peak number of
// concurrently running tasks.
type recordingProcessor struct {
	mu      sync.Mutex
	seeds   []workflow.Seed
	running int
	peak    int

	// onProcess optionally mutates workspace state, as the real workflow
	// indexes identifiers.
	onProcess func(seed workflow.Seed)
}

func (p *recordingProcessor) Process(_ context.Context, seed workflow.Seed) error {
	p.mu.Lock()
	p.running++
	if p.running > p.peak {
		p.peak = p.running
	}
	p.seeds = append(p.seeds, seed)
	p.mu.Unlock()

	if p.onProcess != nil {
		p.onProcess(seed)
	}

	p.mu.Lock()
	p.running--
	p.mu.Unlock()
	return nil
}

func newTestDispatcher(t *testing.T, batchSize int) (*Dispatcher, *recordingProcessor) {
	t.Helper()
	var workspace, err = store.OpenWorkspace(filepath.Join(t.TempDir(), "maps"))
	require.NoError(t, err)
	t.Cleanup(workspace.Close)

	var processor = &recordingProcessor{}
	return &Dispatcher{
		Processor: processor,
		Workspace: workspace,
		BatchSize: batchSize,
	}, processor
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	var path = filepath.Join(t.TempDir(), "input.txt")
	var content string
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHarvestDOIsBatchesAndBounds(t *testing.T) {
	var d, p = newTestDispatcher(t, 2)
	var path = writeLines(t,
		"10.1/a", "", "  10.1/B  ", "https://doi.org/10.1/c", "10.1/d", "10.1/e")

	require.NoError(t, d.HarvestDOIs(context.Background(), path))

	require.Len(t, p.seeds, 5)
	var dois []string
	for _, seed := range p.seeds {
		require.NotEmpty(t, seed.ID)
		dois = append(dois, seed.DOI)
	}
	// DOIs cleaned; order within a batch is unspecified.
	require.ElementsMatch(t, []string{"10.1/a", "10.1/b", "10.1/c", "10.1/d", "10.1/e"}, dois)
	require.LessOrEqual(t, p.peak, 2)
}

func TestResumabilitySkipsKnownIdentifiers(t *testing.T) {
	var d, p = newTestDispatcher(t, 10)
	p.onProcess = func(seed workflow.Seed) {
		// Mimic the workflow's identifier indexing.
		d.Workspace.UUIDs.Put(seed.DOI, []byte(seed.ID))
	}
	var path = writeLines(t, "10.1/a", "10.1/b")

	require.NoError(t, d.HarvestDOIs(context.Background(), path))
	require.Len(t, p.seeds, 2)

	require.NoError(t, d.HarvestDOIs(context.Background(), path))
	require.Len(t, p.seeds, 2, "second run must submit nothing")
}

func TestHarvestPMCIDsSkipsHeader(t *testing.T) {
	var d, p = newTestDispatcher(t, 10)
	var path = writeLines(t, "pmc", "PMC42", "PMC43")

	require.NoError(t, d.HarvestPMCIDs(context.Background(), path))
	require.Len(t, p.seeds, 2)
	require.Equal(t, "PMC42", p.seeds[0].PMCID)
}

func TestMissingInput(t *testing.T) {
	var d, _ = newTestDispatcher(t, 10)
	require.Error(t, d.HarvestDOIs(context.Background(), "/does/not/exist.txt"))
}

func TestHarvestCord19RefreshesKnownRows(t *testing.T) {
	var d, p = newTestDispatcher(t, 10)

	var csv = filepath.Join(t.TempDir(), "metadata.csv")
	require.NoError(t, os.WriteFile(csv, []byte(
		"cord_uid,sha,title,doi,pmcid,pubmed_id,license,abstract,publish_time,Microsoft Academic Paper ID,WHO #Covidence,arxiv_id,url\n"+
			"ug7v899j,aabb,Title One,10.1/A,PMC42,4242,cc-by,Abs,2020-03-01,12345,#1,,http://x\n"+
			"ym2x417s,ccdd,Title Two,10.1/b,,,no-cc,,2019-12-30,,,,\n"), 0o644))

	require.NoError(t, d.HarvestCord19(context.Background(), csv))
	require.Len(t, p.seeds, 2)

	var first = p.byID("ug7v899j")
	require.NotNil(t, first)
	require.Equal(t, "ug7v899j", first.ID)
	require.Equal(t, "10.1/a", first.DOI)
	require.Equal(t, "PMC42", first.PMCID)
	require.Equal(t, "4242", first.PMID)
	require.False(t, first.MetadataOnly)
	require.NotNil(t, first.Cord)
	require.Equal(t, "12345", first.Cord.MagID, "alias header must map to mag_id")
	require.Equal(t, "#1", first.Cord.WHOCovidence)

	// Mark the first row as seen; the rerun refreshes it as metadata-only
	// and still submits it.
	require.NoError(t, d.Workspace.UUIDs.Put("ug7v899j", []byte("ug7v899j")))
	p.seeds = nil

	require.NoError(t, d.HarvestCord19(context.Background(), csv))
	require.Len(t, p.seeds, 2)
	require.True(t, p.byID("ug7v899j").MetadataOnly)
	require.False(t, p.byID("ym2x417s").MetadataOnly)
}

// byID returns the recorded seed with the given id, or nil.
func (p *recordingProcessor) byID(id string) *workflow.Seed {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.seeds {
		if p.seeds[i].ID == id {
			return &p.seeds[i]
		}
	}
	return nil
}

func TestReprocessFailedSelectsIncomplete(t *testing.T) {
	var d, p = newTestDispatcher(t, 10)
	d.Options = workflow.Options{Grobid: true}

	var put = func(entry *biblio.Entry) {
		var b, err = entry.MarshalJSON()
		require.NoError(t, err)
		require.NoError(t, d.Workspace.Entries.Put(entry.ID, b))
	}
	put(&biblio.Entry{ID: "complete", HasValidOAURL: true, HasValidPDF: true, HasValidTEI: true})
	put(&biblio.Entry{ID: "no-tei", DOI: "10.1/x", HasValidOAURL: true, HasValidPDF: true})
	put(&biblio.Entry{ID: "nothing"})

	require.NoError(t, d.ReprocessFailed(context.Background()))

	var ids []string
	for _, seed := range p.seeds {
		ids = append(ids, seed.ID)
	}
	require.ElementsMatch(t, []string{"no-tei", "nothing"}, ids)
}
