package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarlab/harvest/biblio"
)

func TestMapPutGetRange(t *testing.T) {
	var m, err = Open(t.TempDir(), "entries")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Put("b", []byte("two")))
	require.NoError(t, m.Put("a", []byte("one")))
	require.NoError(t, m.Put("c", []byte("three")))

	var b []byte
	b, err = m.Get("b")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), b)

	b, err = m.Get("missing")
	require.NoError(t, err)
	require.Nil(t, b)

	var ok bool
	ok, err = m.Has("a")
	require.NoError(t, err)
	require.True(t, ok)

	// Range visits keys in ascending byte order.
	var keys []string
	require.NoError(t, m.Range(func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, keys)

	var n int
	n, err = m.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestMapRangeStopsOnError(t *testing.T) {
	var m, err = Open(t.TempDir(), "entries")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Put("a", []byte("1")))
	require.NoError(t, m.Put("b", []byte("2")))

	var boom = errors.New("boom")
	var seen int
	err = m.Range(func(_, _ []byte) error {
		seen++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, seen)
}

func TestWorkspaceEntryRoundTrip(t *testing.T) {
	var w, err = OpenWorkspace(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	var entry = &biblio.Entry{
		ID:    "00000000-aaaa-bbbb-cccc-000000000001",
		DOI:   "10.1/abc",
		PMCID: "PMC12345",
	}
	require.NoError(t, w.PutEntry(entry))
	require.NoError(t, w.IndexIdentifiers(entry))

	var got *biblio.Entry
	got, err = w.GetEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	got, err = w.GetEntry("unknown")
	require.NoError(t, err)
	require.Nil(t, got)

	for _, ident := range []string{"10.1/abc", "PMC12345", entry.ID} {
		var id string
		id, err = w.ResolveIdentifier(ident)
		require.NoError(t, err)
		require.Equal(t, entry.ID, id)
	}

	var id string
	id, err = w.ResolveIdentifier("never-seen")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestWorkspaceReset(t *testing.T) {
	var dir = t.TempDir()
	var w, err = OpenWorkspace(dir)
	require.NoError(t, err)

	require.NoError(t, w.PutEntry(&biblio.Entry{ID: "some-id"}))
	require.NoError(t, w.UUIDs.Put("10.1/x", []byte("some-id")))

	// Loose scratch artifacts and a sharded subtree.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "some-id.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "some-id.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "so", "me", "-i", "d"), 0o755))

	require.NoError(t, w.Reset())
	defer w.Close()

	var n int
	n, err = w.Entries.Len()
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = w.UUIDs.Len()
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = os.Stat(filepath.Join(dir, "some-id.pdf"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "some-id.tar.gz"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "so"))
	require.True(t, os.IsNotExist(err))

	// Unrelated files survive a reset.
	_, err = os.Stat(filepath.Join(dir, "keep.txt"))
	require.NoError(t, err)

	// The workspace is usable again.
	require.NoError(t, w.PutEntry(&biblio.Entry{ID: "fresh"}))
}

func TestStoreErrorFormat(t *testing.T) {
	var err = &Error{Map: "entries", Op: "get", Key: "k", Err: errors.New("io failure")}
	require.Equal(t, `map entries: get "k": io failure`, err.Error())
	require.EqualError(t, errors.Unwrap(err), "io failure")
}

func TestBuildPMCMap(t *testing.T) {
	var dir = t.TempDir()

	// The list is "fetched" by writing a fixture, exercising the download
	// branch for an absent resource file.
	var fetched int
	var fetch = func(_ context.Context, url, dest string) error {
		fetched++
		require.Equal(t, "ftp://example.org/oa_file_list.txt", url)
		return os.WriteFile(dest, []byte(
			"2026-01-12 07:15:01\n"+
				"oa_package/08/e0/PMC13900.tar.gz\tBreast Cancer Res. 2001\tPMC13900\tPMID:11250746\tNO-CC CODE\n"+
				"oa_package/b0/ac/PMC176545.tar.gz\tPLoS Biol. 2003\tPMC176545\tPMID:12929205\tCC BY\n"+
				"short\tline\n"), 0o644)
	}

	var m, err = BuildPMCMap(context.Background(), dir, "ftp://example.org/oa_file_list.txt", fetch)
	require.NoError(t, err)

	var rec *PMCRecord
	rec, err = GetPMCRecord(m, "PMC176545")
	require.NoError(t, err)
	require.Equal(t, &PMCRecord{
		Subpath: "oa_package/b0/ac/PMC176545.tar.gz",
		PMID:    "PMID:12929205",
		License: "CC BY",
	}, rec)

	rec, err = GetPMCRecord(m, "PMC999999")
	require.NoError(t, err)
	require.Nil(t, rec)

	// The first line (timestamp) and the malformed line are not entries.
	var n int
	n, err = m.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	m.Close()

	// A second build is short-circuited by the existing map directory.
	m, err = BuildPMCMap(context.Background(), dir, "ftp://example.org/oa_file_list.txt", fetch)
	require.NoError(t, err)
	m.Close()
	require.Equal(t, 1, fetched)
}

func TestPMCRecordEncoding(t *testing.T) {
	var b, err = json.Marshal(PMCRecord{Subpath: "oa_package/x.tar.gz", PMID: "PMID:1", License: "CC0"})
	require.NoError(t, err)
	require.JSONEq(t, `{"subpath":"oa_package/x.tar.gz","pmid":"PMID:1","license":"CC0"}`, string(b))
}
