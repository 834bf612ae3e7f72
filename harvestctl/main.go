// harvestctl is the command-line surface of the scholarly article harvester.
// It consolidates metadata and open-access full texts for lists of DOIs,
// PubMed / PMC identifiers, or the CORD-19 corpus, with resumable state kept
// in the workspace maps.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/scholarlab/harvest/config"
	"github.com/scholarlab/harvest/dispatch"
	"github.com/scholarlab/harvest/fetch"
	"github.com/scholarlab/harvest/grobid"
	"github.com/scholarlab/harvest/lookup"
	"github.com/scholarlab/harvest/oa"
	"github.com/scholarlab/harvest/publish"
	"github.com/scholarlab/harvest/report"
	"github.com/scholarlab/harvest/store"
	"github.com/scholarlab/harvest/thumbnail"
	"github.com/scholarlab/harvest/workflow"
)

type cmdHarvest struct {
	DOIs   string `long:"dois" description:"path to a file listing one DOI per line"`
	PMIDs  string `long:"pmids" description:"path to a file listing one PMID per line"`
	PMCIDs string `long:"pmcids" description:"path to a file listing one PMC ID per line"`
	Cord19 string `long:"cord19" description:"path to the CORD-19 metadata CSV file"`

	Config     string `long:"config" default:"./config.json" description:"path to the configuration file"`
	Reset      bool   `long:"reset" description:"re-initialize the harvesting process from scratch (asks for confirmation)"`
	Reprocess  bool   `long:"reprocess" description:"reprocess existing failed entries"`
	Dump       bool   `long:"dump" description:"write all consolidated metadata to consolidated_metadata.json"`
	Diagnostic bool   `long:"diagnostic" description:"perform a full consistency diagnostic of the harvest"`
	Grobid     bool   `long:"grobid" description:"structure downloaded PDFs into TEI XML with GROBID"`
	Thumbnail  bool   `long:"thumbnail" description:"generate front-page thumbnails for harvested PDFs"`
	Annotation bool   `long:"annotation" description:"generate bibliographical reference annotations with coordinates"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func main() {
	var cmd cmdHarvest
	var parser = flags.NewParser(&cmd, flags.Default)
	parser.ShortDescription = "Scholarly PDF harvester and converter"

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	log.WithFields(log.Fields{
		"config":    cmd.Config,
		"buildDate": mbp.BuildDate,
		"version":   mbp.Version,
	}).Info("harvestctl configuration")

	mbp.Must(cmd.run(context.Background()), "harvesting failed")
}

func (cmd *cmdHarvest) run(ctx context.Context) error {
	var inputs int
	for _, path := range []string{cmd.DOIs, cmd.PMIDs, cmd.PMCIDs, cmd.Cord19} {
		if path == "" {
			continue
		}
		inputs++
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input file %s is not readable: %w", path, err)
		}
	}
	if inputs > 1 {
		return fmt.Errorf("--dois, --pmids, --pmcids and --cord19 are mutually exclusive")
	}

	var cfg, err = config.Load(cmd.Config)
	if err != nil {
		return err
	}
	workspace, err := store.OpenWorkspace(cfg.DataPath)
	if err != nil {
		return err
	}
	defer workspace.Close()

	if cmd.Reset {
		if confirmReset() {
			if err = workspace.Reset(); err != nil {
				return err
			}
			if err = os.Remove(report.DumpFileName); err != nil && !os.IsNotExist(err) {
				return err
			}
		} else {
			fmt.Println("skipping reset...")
		}
	}

	var publisher, pubErr = newPublisher(ctx, cfg)
	if pubErr != nil {
		return pubErr
	}

	var harvesting = cmd.Reprocess || inputs > 0
	if harvesting {
		if err = cmd.harvest(ctx, cfg, workspace, publisher); err != nil {
			return err
		}
	}

	var reporter = &report.Reporter{
		Workspace: workspace,
		DataPath:  cfg.DataPath,
	}
	// Reports are written under the data path already; upload them only when
	// an object store is configured.
	if cfg.BucketName != "" {
		reporter.Publisher = publisher
	}
	if harvesting {
		if err = reporter.WriteCatalogue(ctx); err != nil {
			return err
		}
	}
	if cmd.Diagnostic {
		if _, err = reporter.Diagnostic(true); err != nil {
			return err
		}
		if cmd.Cord19 != "" {
			if err = reporter.WriteCollectionStats(cmd.Cord19); err != nil {
				return err
			}
		}
	}
	if cmd.Dump {
		if err = reporter.DumpMetadata(ctx, report.DumpFileName); err != nil {
			return err
		}
	}
	return nil
}

// harvest assembles the workflow stack and runs the requested pass.
func (cmd *cmdHarvest) harvest(ctx context.Context, cfg config.Config, workspace *store.Workspace, publisher *publish.Publisher) error {
	var downloader = fetch.NewDownloader()
	if err := fetch.VerifyDependencies(); err != nil {
		log.WithField("err", err).Warn("degraded download transports")
	}
	if cmd.Thumbnail {
		if err := thumbnail.VerifyDependencies(); err != nil {
			log.WithField("err", err).Warn("thumbnail generation is unavailable")
		}
	}

	var grobidClient = grobid.NewClient(cfg.GrobidBase, cfg.GrobidPort, cfg.SleepTime)
	if cmd.Grobid && !grobidClient.IsAlive(ctx) {
		log.Warn("GROBID service is not alive, structuring will be retried per entry")
	}

	// The PMC resource map is built once per workspace from the OA file
	// list, fetched through the regular download chain when absent.
	var pmcMap, err = store.BuildPMCMap(ctx, cfg.ResourcePath, cfg.PMCOAListURL, downloader.Download)
	if err != nil {
		return err
	}
	defer pmcMap.Close()

	elsevier, err := oa.LoadElsevierMap(cfg.ResourcePath, cfg.Cord19ElsevierMapPath, cfg.Cord19ElsevierPDFPath)
	if err != nil {
		return err
	}

	var options = workflow.Options{
		Grobid:     cmd.Grobid,
		Annotation: cmd.Annotation,
		Thumbnail:  cmd.Thumbnail,
	}
	var harvester = &workflow.Harvester{
		Workspace: workspace,
		Lookup:    lookup.NewClient(cfg.BiblioGluttonBase, cfg.CrossrefBase, cfg.CrossrefEmail),
		Resolver: &oa.Resolver{
			Elsevier:   elsevier,
			PMC:        pmcMap,
			Unpaywall:  oa.NewClient(cfg.UnpaywallBase, cfg.UnpaywallEmail, cfg.PMCBaseWeb),
			LegacyPath: cfg.LegacyDataPath,
			PMCBaseFTP: cfg.PMCBaseFTP,
		},
		Downloader: downloader,
		Grobid:     grobidClient,
		Publisher:  publisher,
		Scratch:    cfg.DataPath,
		LegacyPath: cfg.LegacyDataPath,
		Options:    options,
	}
	var dispatcher = &dispatch.Dispatcher{
		Processor: harvester,
		Workspace: workspace,
		Options:   options,
		BatchSize: cfg.BatchSize,
	}

	switch {
	case cmd.Reprocess:
		return dispatcher.ReprocessFailed(ctx)
	case cmd.Cord19 != "":
		return dispatcher.HarvestCord19(ctx, cmd.Cord19)
	case cmd.DOIs != "":
		return dispatcher.HarvestDOIs(ctx, cmd.DOIs)
	case cmd.PMIDs != "":
		return dispatcher.HarvestPMIDs(ctx, cmd.PMIDs)
	case cmd.PMCIDs != "":
		return dispatcher.HarvestPMCIDs(ctx, cmd.PMCIDs)
	}
	return nil
}

// newPublisher selects the publication target from the configuration: the
// local sharded tree, or an object-store bucket.
func newPublisher(ctx context.Context, cfg config.Config) (*publish.Publisher, error) {
	var target publish.Target
	var err error

	switch {
	case cfg.BucketName == "":
		target = publish.NewLocal(cfg.DataPath)
	case cfg.BucketProvider == "gs":
		target, err = publish.NewGCS(ctx, cfg.BucketName, cfg.GoogleCreds)
	default:
		target, err = publish.NewS3(ctx, cfg.BucketName, cfg.BucketRegion,
			cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.StorageClass)
	}
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(cfg.DataPath, target), nil
}

// confirmReset asks for an interactive confirmation before the only
// destructive operation of the tool.
func confirmReset() bool {
	fmt.Print("\nYou asked to reset the existing harvesting, " +
		"this will remove all the already downloaded data files... are you sure? (y/n) ")

	var reply, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(reply) == "y"
}
