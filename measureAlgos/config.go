package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/logging"
)

func LoadConfiguration(filename string) (scanner.Configuration, error) {
	config := scanner.DefaultConfiguration()
	config.NumWorkers = 4

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func printConfiguration(config scanner.Configuration, logger logging.Logger) {
	logger.Info(fmt.Sprintf("Files in: %s", strings.Join(config.FileIn, ", ")), "config")
	logger.Info(fmt.Sprintf("Map file: %s", config.MapFile), "config")
	logger.Info(fmt.Sprintf("Use DB: %t", config.UseDB), "config")
	logger.Info(fmt.Sprintf("Untriggered: %t", config.Untriggered), "config")
	logger.Info(fmt.Sprintf("Event width: %g s", config.EventWidth), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
}
