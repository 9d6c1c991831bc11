// density-report runs the course density analysis: it loads a segment
// catalog, a runner field, and optional LOS thresholds, executes one full
// run, persists the artifacts to sqlite, and renders the reports.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/corral-data/density.report/internal/budget"
	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/engine"
	"github.com/corral-data/density.report/internal/field"
	"github.com/corral-data/density.report/internal/grid"
	"github.com/corral-data/density.report/internal/report"
	"github.com/corral-data/density.report/internal/store"
	"github.com/corral-data/density.report/internal/units"
)

var (
	catalogPath = flag.String("catalog", "catalog.json", "segment catalog file")
	runnersPath = flag.String("runners", "runners.json", "runner field file")
	losPath     = flag.String("los", "", "LOS threshold table file (default: built-in Fruin table)")
	dbPath      = flag.String("db", "density.db", "sqlite database file (empty to skip persistence)")
	reportDir   = flag.String("report-dir", "reports", "report output directory (empty to skip reports)")
	speedUnits  = flag.String("units", units.MPS, "speed unit for report summaries ("+units.GetValidUnitsString()+")")

	binLength    = flag.Float64("bin-length", 10, "base distance bin length in metres")
	windowSec    = flag.Float64("window", 30, "base time window in seconds")
	maxFeatures  = flag.Int("max-features", 0, "feature budget override (0 = default)")
	hotspots     = flag.String("hotspots", "", "comma-separated segment IDs that retain resolution")
	horizonStart = flag.Float64("horizon-start", 0, "analysis horizon start in seconds from epoch")
	horizonEnd   = flag.Float64("horizon-end", 0, "analysis horizon end (0 = derive from field)")
)

func main() {
	flag.Parse()

	catalog, err := course.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	f, err := field.LoadField(*runnersPath)
	if err != nil {
		log.Fatalf("Failed to load runner field: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.Base = budget.Resolution{BinLengthM: *binLength, WindowSec: *windowSec}
	cfg.HorizonStartSec = *horizonStart
	cfg.HorizonEndSec = *horizonEnd
	if *maxFeatures > 0 {
		cfg.Budget.MaxFeatures = *maxFeatures
	}
	if *hotspots != "" {
		cfg.Budget.Hotspots = strings.Split(*hotspots, ",")
	}
	if *losPath != "" {
		table, err := grid.LoadLOSTable(*losPath)
		if err != nil {
			log.Fatalf("Failed to load LOS table: %v", err)
		}
		cfg.LOS = table
	}

	e, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	res, err := e.Run(catalog, f)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	if *dbPath != "" {
		if err := persist(*dbPath, res, cfg); err != nil {
			log.Fatalf("Failed to persist run: %v", err)
		}
		log.Printf("Run %s persisted to %s", res.RunID, *dbPath)
	}

	if *reportDir != "" {
		r, err := report.NewReporter(*reportDir, *speedUnits)
		if err != nil {
			log.Fatalf("Failed to prepare report dir: %v", err)
		}
		if err := r.Generate(res); err != nil {
			log.Fatalf("Failed to render reports: %v", err)
		}
		log.Printf("Reports written to %s", *reportDir)
	}

	if res.Status != engine.StatusOK {
		log.Printf("Run finished with status %s", res.Status)
		os.Exit(1)
	}
}

// persist writes the run summary and every artifact to the database.
func persist(path string, res *engine.RunResult, cfg engine.Config) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	params, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize run params: %w", err)
	}

	rec := store.RunRecord{
		RunID:              res.RunID,
		StartedAt:          res.StartedAt,
		FinishedAt:         res.FinishedAt,
		Status:             res.Status,
		FinalState:         string(res.Metadata.FinalState),
		Attempts:           res.Metadata.Attempts,
		TotalFeatures:      res.Metadata.TotalFeatures,
		OccupiedBins:       res.Metadata.OccupiedBins,
		NonzeroDensityBins: res.Metadata.NonzeroDensityBins,
		ParamsJSON:         string(params),
	}
	if err := s.InsertRun(rec); err != nil {
		return err
	}
	for _, g := range res.Grids {
		if err := s.InsertGrid(res.RunID, g); err != nil {
			return err
		}
	}
	for _, cr := range res.Convergence {
		if err := s.InsertConvergence(res.RunID, cr); err != nil {
			return err
		}
	}
	for _, rec := range res.Overtakes {
		if err := s.InsertOvertake(res.RunID, rec); err != nil {
			return err
		}
	}
	return s.InsertWarnings(res.RunID, res.Warnings)
}
