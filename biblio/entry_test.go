package biblio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	var entry = &Entry{
		ID:            "b1864bb0-e0ad-4afb-8f8b-b2fd7b7e4b46",
		DOI:           "10.1038/s41586-020-2012-7",
		PMID:          "32015508",
		PMCID:         "PMC7095418",
		Title:         "A new coronavirus associated with human respiratory disease in China",
		Year:          "2020-02-03",
		OALink:        "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC7095418/pdf/",
		DataPath:      "b1/86/4b/b0/b1864bb0-e0ad-4afb-8f8b-b2fd7b7e4b46/",
		HasValidOAURL: true,
		HasValidPDF:   true,
		Extra: map[string]json.RawMessage{
			"author":  json.RawMessage(`[{"family":"Wu","given":"Fan"}]`),
			"journal": json.RawMessage(`"Nature"`),
		},
	}

	var b, err = json.Marshal(entry)
	require.NoError(t, err)

	var got = new(Entry)
	require.NoError(t, json.Unmarshal(b, got))
	require.Equal(t, entry, got)
}

func TestEntrySerializationIsStable(t *testing.T) {
	var entry = &Entry{ID: "za0x4f12", DOI: "10.1/abc", HasValidPDF: true}

	var expect = `{"DOI":"10.1/abc",` +
		`"has_valid_oa_url":false,` +
		`"has_valid_pdf":true,` +
		`"has_valid_ref_annotation":false,` +
		`"has_valid_tei":false,` +
		`"has_valid_thumbnail":false,` +
		`"id":"za0x4f12"}`

	for i := 0; i != 3; i++ {
		var b, err = json.Marshal(entry)
		require.NoError(t, err)
		require.Equal(t, expect, string(b))
	}
}

func TestEntryKeepsUnexpectedShapesOpaque(t *testing.T) {
	// A CrossRef-style record carries "title" as an array. It must survive
	// through Extra rather than be dropped or fail the decode.
	var record = `{
		"DOI": "10.1037/0003-066x.59.1.29",
		"title": ["The Psychology of Open Access"],
		"author": [{"family": "Doe"}],
		"has_valid_pdf": false
	}`

	var entry = new(Entry)
	require.NoError(t, json.Unmarshal([]byte(record), entry))

	require.Equal(t, "10.1037/0003-066x.59.1.29", entry.DOI)
	require.Empty(t, entry.Title)
	require.Contains(t, entry.Extra, "title")
	require.Contains(t, entry.Extra, "author")

	// And it round-trips.
	var b, err = json.Marshal(entry)
	require.NoError(t, err)
	var again = new(Entry)
	require.NoError(t, json.Unmarshal(b, again))
	require.Equal(t, entry, again)
}

func TestStrongIdentifiers(t *testing.T) {
	var entry = &Entry{ID: "id-1", DOI: "10.1/x", PMID: "123"}
	require.Equal(t, []string{"10.1/x", "123", "id-1"}, entry.StrongIdentifiers())

	entry = &Entry{ID: "id-2"}
	require.Equal(t, []string{"id-2"}, entry.StrongIdentifiers())
}

func TestComplete(t *testing.T) {
	var entry = &Entry{HasValidOAURL: true, HasValidPDF: true}

	require.True(t, entry.Complete(false, false, false))
	require.False(t, entry.Complete(true, false, false))

	entry.HasValidTEI = true
	require.True(t, entry.Complete(true, false, false))
	require.False(t, entry.Complete(true, true, true))

	entry.HasValidRefAnnotation = true
	entry.HasValidThumbnail = true
	require.True(t, entry.Complete(true, true, true))

	entry.HasValidPDF = false
	require.False(t, entry.Complete(false, false, false))
}
