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
	dbFilename := flag.String("db", "", "SQLite file written by the scanner")
	runID := flag.String("run", "", "Run id, defaults to the latest run in the file")
	output := flag.String("out", "", "Time calibration file to write, defaults to stdout")
	minEntries := flag.Int("min-entries", 10, "Minimum number of samples per channel")
	flag.Parse()

	if err := align(*dbFilename, *runID, *output, *minEntries); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func align(dbFilename string, runID string, output string, minEntries int) error {
	if dbFilename == "" {
		return fmt.Errorf("no database given")
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
	logger.Info(fmt.Sprintf("Aligning run %s", runID), "timeAlign")

	samples, err := store.StartRelativeTimes(runID)
	if err != nil {
		return err
	}
	cals := scanner.AlignTimes(samples, minEntries)
	message := fmt.Sprintf("%d channels with start relative times, %d aligned", len(samples), len(cals))
	logger.Info(message, "timeAlign")

	if output == "" {
		return scanner.WriteTimeCalibration(os.Stdout, cals)
	}
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", output, err)
	}
	if err := scanner.WriteTimeCalibration(file, cals); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
