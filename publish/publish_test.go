package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarlab/harvest/biblio"
)

const testID = "abcdef0123456789abcdef0123456789"

func seedScratch(t *testing.T, scratch string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(scratch, name), []byte(content), 0o644))
	}
}

func TestPublishToLocalTree(t *testing.T) {
	var scratch, root = t.TempDir(), t.TempDir()
	seedScratch(t, scratch, map[string]string{
		testID + ".pdf":             "%PDF-1.4 fixture body",
		testID + ".json":            `{"id":"x"}`,
		testID + ".grobid.tei.xml":  `<?xml version="1.0"?><TEI/>`,
		testID + "-thumb-small.png": "notapng",
		"other.pdf":                 "%PDF-1.4 unrelated",
	})

	var p = NewPublisher(scratch, NewLocal(root))
	require.NoError(t, p.Publish(context.Background(), testID))

	var shard = filepath.Join(root, "ab", "cd", "ef", "01", testID)
	require.FileExists(t, filepath.Join(shard, testID+".pdf"))
	require.FileExists(t, filepath.Join(shard, testID+".json"))
	require.FileExists(t, filepath.Join(shard, testID+".grobid.tei.xml"))
	// Thumbnails need only exist to be published.
	require.FileExists(t, filepath.Join(shard, testID+"-thumb-small.png"))

	// Scratch files of this entry are gone; unrelated files stay.
	require.NoFileExists(t, filepath.Join(scratch, testID+".pdf"))
	require.NoFileExists(t, filepath.Join(scratch, testID+".json"))
	require.FileExists(t, filepath.Join(scratch, "other.pdf"))
}

func TestInvalidPDFIsNotPublished(t *testing.T) {
	var scratch, root = t.TempDir(), t.TempDir()
	seedScratch(t, scratch, map[string]string{
		testID + ".pdf":  "<html>interstitial page</html>",
		testID + ".json": `{"id":"x"}`,
	})

	var p = NewPublisher(scratch, NewLocal(root))
	require.NoError(t, p.Publish(context.Background(), testID))

	var shard = filepath.Join(root, biblio.StoragePath(testID))
	require.NoFileExists(t, filepath.Join(shard, testID+".pdf"))
	require.FileExists(t, filepath.Join(shard, testID+".json"))
}

func TestPutFile(t *testing.T) {
	var scratch, root = t.TempDir(), t.TempDir()
	var dump = filepath.Join(scratch, "consolidated_metadata.json")
	require.NoError(t, os.WriteFile(dump, []byte("{}\n"), 0o644))

	var p = NewPublisher(scratch, NewLocal(root))
	require.NoError(t, p.PutFile(context.Background(), dump, "consolidated_metadata.json"))
	require.FileExists(t, filepath.Join(root, "consolidated_metadata.json"))
}
