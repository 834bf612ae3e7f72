// Package config loads the harvester configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Config is the JSON configuration of a harvesting workspace.
// Unknown keys in the file are ignored.
type Config struct {
	// DataPath is the scratch and local storage root. The entry and
	// identifier maps live under it.
	DataPath string `json:"data_path"`
	// ResourcePath holds downloaded resource files (PMC OA list) and the
	// derived PMC map.
	ResourcePath string `json:"resource_path"`

	// Object-store publication. BucketName empty means local publication.
	BucketName     string `json:"bucket_name"`
	BucketProvider string `json:"bucket_provider"`
	BucketRegion   string `json:"bucket_region"`
	AWSAccessKeyID string `json:"aws_access_key_id"`
	AWSSecretKey   string `json:"aws_secret_access_key"`
	GoogleCreds    string `json:"google_credentials"`
	StorageClass   string `json:"storage_class"`

	// Structuring service.
	GrobidBase string `json:"grobid_base"`
	GrobidPort string `json:"grobid_port"`
	SleepTime  int    `json:"sleep_time"`

	// Metadata lookup services.
	BiblioGluttonBase string `json:"biblio_glutton_base"`
	CrossrefBase      string `json:"crossref_base"`
	CrossrefEmail     string `json:"crossref_email"`
	UnpaywallBase     string `json:"unpaywall_base"`
	UnpaywallEmail    string `json:"unpaywall_email"`

	// PMC bases: the web prefix recognizes PMC-hosted landing pages, the FTP
	// prefix addresses open-access archives listed in the OA file list.
	PMCBaseWeb   string `json:"pmc_base_web"`
	PMCBaseFTP   string `json:"pmc_base_ftp"`
	PMCOAListURL string `json:"pmc_oa_list_url"`

	// CORD-19 Elsevier-provided full texts.
	Cord19ElsevierPDFPath string `json:"cord19_elsevier_pdf_path"`
	Cord19ElsevierMapPath string `json:"cord19_elsevier_map_path"`

	// LegacyDataPath points at a previous harvest tree whose artifacts are
	// reused instead of re-downloaded.
	LegacyDataPath string `json:"legacy_data_path"`

	BatchSize int `json:"batch_size"`
}

// Load reads and validates the configuration at the given path.
func Load(path string) (Config, error) {
	var cfg Config

	var b, err = os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err = cfg.Validate(); err != nil {
		return cfg, err
	}
	log.WithFields(log.Fields{
		"config":    path,
		"dataPath":  cfg.DataPath,
		"bucket":    cfg.BucketName,
		"batchSize": cfg.BatchSize,
	}).Info("loaded configuration")

	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}
	if cfg.ResourcePath == "" {
		cfg.ResourcePath = "./resources"
	}
	if cfg.BucketName != "" && cfg.BucketProvider == "" {
		cfg.BucketProvider = "s3"
	}
	if cfg.StorageClass == "" {
		cfg.StorageClass = "ONEZONE_IA"
	}
	if cfg.SleepTime == 0 {
		cfg.SleepTime = 5
	}
	if cfg.CrossrefBase == "" {
		cfg.CrossrefBase = "https://api.crossref.org"
	}
	if cfg.UnpaywallBase == "" {
		cfg.UnpaywallBase = "https://api.unpaywall.org/v2/"
	}
	if cfg.PMCBaseWeb == "" {
		cfg.PMCBaseWeb = "https://www.ncbi.nlm.nih.gov/pmc/articles"
	}
	if cfg.PMCBaseFTP == "" {
		cfg.PMCBaseFTP = "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc"
	}
	if cfg.PMCOAListURL == "" {
		cfg.PMCOAListURL = "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_file_list.txt"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
}

// Validate rejects configurations the harvester cannot run with.
func (cfg *Config) Validate() error {
	if cfg.DataPath == "" {
		return fmt.Errorf("config: data_path is required")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be positive, got %d", cfg.BatchSize)
	}
	switch cfg.BucketProvider {
	case "", "s3", "gs":
		// Supported providers.
	default:
		return fmt.Errorf("config: unknown bucket_provider %q (expected s3 or gs)", cfg.BucketProvider)
	}
	if cfg.BucketProvider != "" && cfg.BucketName == "" {
		return fmt.Errorf("config: bucket_provider %q set without bucket_name", cfg.BucketProvider)
	}
	return nil
}
