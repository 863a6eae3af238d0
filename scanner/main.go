package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/busout"
	"github.com/next-exp/scanner_go/pkg/hdf5out"
	"github.com/next-exp/scanner_go/pkg/logging"
	"github.com/next-exp/scanner_go/pkg/sqlout"
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
	scanner.SetConfiguration(configuration)
	scanner.SetLogger(logger)

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := scan(ctx); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func scan(ctx context.Context) error {
	start := time.Now()

	chanMap, err := loadChannelMap()
	if err != nil {
		return err
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Channel map with %d channels, types %v", chanMap.Size(), chanMap.Types())
		logger.Info(message, "main")
	}

	calib, err := scanner.LoadCalibration(configuration.TimeCalib, configuration.EnergyCalib, configuration.PositionCalib)
	if err != nil {
		return err
	}

	sink, monitor, err := openSinks(ctx)
	if err != nil {
		return err
	}

	metrics, err := scanner.NewMetrics()
	if err != nil {
		return errors.Join(fmt.Errorf("error creating metrics: %w", err), sink.Close())
	}

	correlator, err := scanner.NewCorrelator(configuration, chanMap, calib, sink, metrics)
	if err != nil {
		return errors.Join(err, sink.Close())
	}

	// The monitor must be consuming before anything is published
	tallies := make(chan busout.Tally, 1)
	if monitor != nil {
		go func() {
			tally, err := monitor.Run(ctx)
			if err != nil {
				logger.Error(fmt.Errorf("monitor stopped: %w", err).Error())
			}
			tallies <- tally
		}()
	}

	reader := NewFileReader(configuration.FileIn, configuration.Skip, configuration.MaxEvents)
	runErr := processPulses(ctx, correlator, reader)
	if err := reader.Close(); err != nil {
		logger.Error(fmt.Errorf("error closing input: %w", err).Error())
	}
	closeErr := correlator.Close()

	if monitor != nil {
		tally := <-tallies
		message := fmt.Sprintf("Monitor received %d batches with %d records", tally.Batches, tally.Records())
		logger.Info(message, "main")
	}

	if configuration.PlotsDir != "" {
		files, err := scanner.WriteHistograms(configuration.PlotsDir, correlator.Histograms())
		if err != nil {
			logger.Error(fmt.Errorf("error writing plots: %w", err).Error())
		}
		maps, err := scanner.WriteHistograms2D(configuration.PlotsDir, correlator.ChannelHistograms())
		if err != nil {
			logger.Error(fmt.Errorf("error writing channel plots: %w", err).Error())
		}
		files = append(files, maps...)
		if configuration.Verbosity > 0 {
			message := fmt.Sprintf("Wrote %d plots to %s", len(files), configuration.PlotsDir)
			logger.Info(message, "main")
		}
	}
	if configuration.MetricsFile != "" {
		if err := metrics.WriteMetricsFile(configuration.MetricsFile); err != nil {
			logger.Error(fmt.Errorf("error writing metrics: %w", err).Error())
		}
	}

	printStatistics(correlator.Stats())
	message := fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds())
	logger.Info(message, "main")

	return errors.Join(runErr, closeErr)
}

// processPulses runs the correlator over the input. A panic while handling
// the input stops the scan but still lets the caller close the outputs.
func processPulses(ctx context.Context, correlator *scanner.Correlator, source scanner.Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner recovered from panic: %v", r)
		}
	}()
	return correlator.Run(ctx, source)
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

// openSinks creates every configured output. The returned monitor is nil
// unless records are published.
func openSinks(ctx context.Context) (*scanner.MultiSink, *busout.Monitor, error) {
	sinks := scanner.NewMultiSink()
	var monitor *busout.Monitor

	if configuration.FileOut != "" {
		writer, err := hdf5out.NewWriter(configuration.FileOut, configuration.CompressionLevel, logger)
		if err != nil {
			return nil, nil, errors.Join(err, sinks.Close())
		}
		sinks.Add(writer)
	}
	if configuration.SqliteOut != "" {
		store, err := sqlout.Open(configuration.SqliteOut)
		if err != nil {
			return nil, nil, errors.Join(err, sinks.Close())
		}
		message := fmt.Sprintf("Writing run %s to %s", store.RunID(), configuration.SqliteOut)
		logger.Info(message, "main")
		sinks.Add(store)
	}
	if configuration.Publish {
		pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
		var err error
		monitor, err = busout.NewMonitor(ctx, pubSub, configuration.TopicPrefix, logger)
		if err != nil {
			return nil, nil, errors.Join(err, pubSub.Close(), sinks.Close())
		}
		sinks.Add(busout.NewPublisher(pubSub, configuration.TopicPrefix))
	}
	if sinks.Len() == 0 {
		logger.Info("No output configured, records will be discarded", "main")
	}
	return sinks, monitor, nil
}

func printStatistics(stats scanner.RunStatistics) {
	logger.Info(fmt.Sprintf("Total pulses: %d", stats.TotalEvents), "summary")
	logger.Info(fmt.Sprintf("Start pulses: %d", stats.StartEvents), "summary")
	logger.Info(fmt.Sprintf("Invalid pulses: %d", stats.InvalidEvents()), "summary")
	for kind, count := range stats.Invalid {
		logger.Info(fmt.Sprintf("  %s: %d", kind, count), "summary")
	}
	logger.Info(fmt.Sprintf("Dropped pulses: %d", stats.Dropped), "summary")
	logger.Info(fmt.Sprintf("Orphaned pulses: %d", stats.OrphanedPairs), "summary")
	logger.Info(fmt.Sprintf("Flushes: %d", stats.Flushes), "summary")
	logger.Info(fmt.Sprintf("First start time: %g s", stats.FirstEventTime), "summary")
	logger.Info(fmt.Sprintf("Start time span: %g s", stats.DeltaEventTime), "summary")
	for name, counters := range stats.Processors {
		message := fmt.Sprintf("%s: total %d, good %d, incomplete %d", name, counters.Total, counters.Good, counters.Incomplete)
		logger.Info(message, "summary")
	}
}
