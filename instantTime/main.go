package main

import (
	"flag"
	"fmt"
	"os"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/logging"
	"github.com/next-exp/scanner_go/pkg/sqlout"
)

var logger = logging.NewLogger()

func main() {
	dbFilename := flag.String("db", "", "SQLite file written by the scanner with write_raw enabled")
	runID := flag.String("run", "", "Run id, defaults to the latest run in the file")
	output := flag.String("out", "", "File to write the start times to, defaults to stdout")
	clockPeriod := flag.Float64("clock", 8, "Clock tick in ns")
	flag.Parse()

	if err := instantTimes(*dbFilename, *runID, *output, *clockPeriod); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func instantTimes(dbFilename string, runID string, output string, clockPeriod float64) error {
	if dbFilename == "" {
		return fmt.Errorf("no database given")
	}
	if clockPeriod <= 0 {
		return fmt.Errorf("invalid clock period %g", clockPeriod)
	}
	store, err := sqlout.Open(dbFilename)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID == "" {
		runID, err = store.LatestRunID()
		if err != nil {
			return err
		}
	}
	logger.Info(fmt.Sprintf("Processing run %s", runID), "instantTime")

	ticks, err := store.StartTimestamps(runID)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("run %s has no start pulses, was it written with write_raw?", runID)
	}
	times := scanner.InstantTimes(ticks, clockPeriod)
	elapsed := 0.0
	if len(times) > 0 {
		elapsed = times[len(times)-1].Time
	}
	logger.Info(fmt.Sprintf("First event time   = %g s", float64(ticks[0])*clockPeriod*1e-9), "instantTime")
	logger.Info(fmt.Sprintf("Total elapsed time = %g s", elapsed*1e-9), "instantTime")

	if output == "" {
		return scanner.WriteInstantTimes(os.Stdout, times)
	}
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", output, err)
	}
	if err := scanner.WriteInstantTimes(file, times); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
