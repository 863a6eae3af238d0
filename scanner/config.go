package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/logging"
)

// LoadConfiguration reads a JSON configuration file on top of the defaults.
func LoadConfiguration(filename string) (scanner.Configuration, error) {
	config := scanner.DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	if err := validateConfiguration(config); err != nil {
		return config, err
	}
	return config, nil
}

func validateConfiguration(config scanner.Configuration) error {
	switch config.TimingMode {
	case scanner.ConstantFraction, scanner.CurveFit:
	default:
		return fmt.Errorf("unknown timing mode %q", config.TimingMode)
	}
	switch config.EnergyMode {
	case scanner.Integration, scanner.Amplitude:
	default:
		return fmt.Errorf("unknown energy mode %q", config.EnergyMode)
	}
	switch config.OrphanPolicy {
	case scanner.OrphanBuffer, scanner.OrphanDiscard:
	default:
		return fmt.Errorf("unknown orphan policy %q", config.OrphanPolicy)
	}
	if config.EventWidth <= 0 {
		return fmt.Errorf("event width must be positive, got %g", config.EventWidth)
	}
	if config.QdcLow < 0 || config.QdcHigh < 0 {
		return fmt.Errorf("qdc window must be non negative, got [%d, %d]", config.QdcLow, config.QdcHigh)
	}
	if !config.UseDB && config.MapFile == "" {
		return fmt.Errorf("either map_file or use_db must be set")
	}
	if len(config.FileIn) == 0 {
		return fmt.Errorf("no input files")
	}
	return nil
}

func printConfiguration(config scanner.Configuration, logger logging.Logger) {
	logger.Info(fmt.Sprintf("Files in: %s", strings.Join(config.FileIn, ", ")), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("SQLite out: %s", config.SqliteOut), "config")
	logger.Info(fmt.Sprintf("Publish: %t", config.Publish), "config")
	logger.Info(fmt.Sprintf("Plots dir: %s", config.PlotsDir), "config")
	logger.Info(fmt.Sprintf("Metrics file: %s", config.MetricsFile), "config")
	logger.Info(fmt.Sprintf("Write raw: %t", config.WriteRaw), "config")
	logger.Info(fmt.Sprintf("Write traces: %t", config.WriteTraces), "config")
	logger.Info(fmt.Sprintf("Write stats: %t", config.WriteStats), "config")
	logger.Info(fmt.Sprintf("Use DB: %t", config.UseDB), "config")
	if config.UseDB {
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	} else {
		logger.Info(fmt.Sprintf("Map file: %s", config.MapFile), "config")
	}
	logger.Info(fmt.Sprintf("Time calibration: %s", config.TimeCalib), "config")
	logger.Info(fmt.Sprintf("Energy calibration: %s", config.EnergyCalib), "config")
	logger.Info(fmt.Sprintf("Position calibration: %s", config.PositionCalib), "config")
	logger.Info(fmt.Sprintf("Event width: %g s", config.EventWidth), "config")
	logger.Info(fmt.Sprintf("Untriggered: %t", config.Untriggered), "config")
	logger.Info(fmt.Sprintf("Orphan policy: %s", config.OrphanPolicy), "config")
	logger.Info(fmt.Sprintf("Record incomplete: %t", config.RecordIncomplete), "config")
	logger.Info(fmt.Sprintf("Timing mode: %s", config.TimingMode), "config")
	logger.Info(fmt.Sprintf("Energy mode: %s", config.EnergyMode), "config")
	logger.Info(fmt.Sprintf("Noise threshold: %g", config.NoiseThreshold), "config")
	logger.Info(fmt.Sprintf("QDC window: [%d, %d]", config.QdcLow, config.QdcHigh), "config")
	logger.Info(fmt.Sprintf("CFD fraction: %g", config.CfdFraction), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
}
