package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/logging"
)

var configuration scanner.Configuration

var logger = logging.NewLogger()

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	// The correlators share the logger, keep the library quiet
	quiet := configuration
	quiet.Verbosity = 0
	scanner.SetConfiguration(quiet)
	scanner.SetLogger(logger)

	if configuration.Verbosity > 0 {
		printConfiguration(configuration, logger)
	}

	chanMap, err := loadChannelMap()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	calib, err := scanner.LoadCalibration(configuration.TimeCalib, configuration.EnergyCalib, configuration.PositionCalib)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	start := time.Now()
	spills, err := readInput(configuration.FileIn)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	source := scanner.NewMemorySource(spills...)
	message := fmt.Sprintf("Read %d pulses in %d spills in %d ms", source.Len(), len(spills), time.Since(start).Milliseconds())
	logger.Info(message, "main")

	bench := benchmark{config: configuration, chanMap: chanMap, calib: calib, spills: spills}
	bench.config.Verbosity = 0
	results := runAlgorithms(bench, algorithms, configuration.NumWorkers)

	failed := false
	for _, result := range results {
		if result.Err != nil {
			logger.Error(fmt.Errorf("%s: %w", result.Algorithm, result.Err).Error())
			failed = true
			continue
		}
		fmt.Printf("(%s) Time: %d ms, valid %.2f%%, records %s\n", result.Algorithm,
			result.Duration.Milliseconds(), 100*result.ValidFraction(), formatRecords(result.Records()))
	}
	if failed {
		os.Exit(1)
	}
}

func loadChannelMap() (*scanner.ChannelMap, error) {
	if !configuration.UseDB {
		return scanner.LoadMapFile(configuration.MapFile)
	}
	dbConn, err := scanner.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
	if err != nil {
		return nil, &scanner.ConfigError{Resource: "database", Err: err}
	}
	defer dbConn.Close()
	return scanner.LoadChannelMapFromDB(dbConn, configuration.RunNumber)
}

func readInput(filenames []string) ([][]scanner.RawPulse, error) {
	spills := make([][]scanner.RawPulse, 0)
	for _, filename := range filenames {
		file, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		fileSpills, err := scanner.ReadSpills(bufio.NewReader(file))
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", filename, err)
		}
		spills = append(spills, fileSpills...)
	}
	return spills, nil
}

func formatRecords(records map[string]int) string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]string, len(names))
	for i, name := range names {
		fields[i] = fmt.Sprintf("%s=%d", name, records[name])
	}
	return strings.Join(fields, " ")
}
