package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	var dir = t.TempDir()
	var path = filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"data_path": "/tmp/harvest-data",
		"grobid_base": "localhost",
		"grobid_port": "8070",
		"pub2tei_path": "/opt/Pub2TEI",
		"unknown_key": "ignored"
	}`), 0o644))

	var cfg, err = Load(path)
	require.NoError(t, err)

	require.Equal(t, "/tmp/harvest-data", cfg.DataPath)
	require.Equal(t, "./resources", cfg.ResourcePath)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 5, cfg.SleepTime)
	require.Equal(t, "https://api.crossref.org", cfg.CrossrefBase)
	require.Equal(t, "https://api.unpaywall.org/v2/", cfg.UnpaywallBase)
	require.Equal(t, "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc", cfg.PMCBaseFTP)
	require.Empty(t, cfg.BucketProvider)
}

func TestLoadBucketDefaultsToS3(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"data_path": "/tmp/d",
		"bucket_name": "my-harvest"
	}`), 0o644))

	var cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "s3", cfg.BucketProvider)
	require.Equal(t, "ONEZONE_IA", cfg.StorageClass)
}

func TestLoadRejectsBadProvider(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"data_path": "/tmp/d",
		"bucket_name": "b",
		"bucket_provider": "azure"
	}`), 0o644))

	var _, err = Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown bucket_provider")
}

func TestLoadMissingFile(t *testing.T) {
	var _, err = Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestValidateProviderWithoutBucket(t *testing.T) {
	var cfg = Config{DataPath: "/tmp/d", BatchSize: 10, BucketProvider: "gs"}
	require.Error(t, cfg.Validate())
}
