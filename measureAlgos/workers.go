package main

import (
	"context"
	"fmt"
	"time"

	scanner "github.com/next-exp/scanner_go/pkg"
)

// Algorithm is one combination of timing and energy extraction.
type Algorithm struct {
	Timing scanner.TimingMode
	Energy scanner.EnergyMode
}

func (a Algorithm) String() string {
	return fmt.Sprintf("%s/%s", a.Timing, a.Energy)
}

var algorithms = []Algorithm{
	{scanner.ConstantFraction, scanner.Integration},
	{scanner.ConstantFraction, scanner.Amplitude},
	{scanner.CurveFit, scanner.Integration},
	{scanner.CurveFit, scanner.Amplitude},
}

type AlgoResult struct {
	Algorithm Algorithm
	Duration  time.Duration
	Stats     scanner.RunStatistics
	Err       error
}

// ValidFraction is the share of pulses whose analysis succeeded.
func (r AlgoResult) ValidFraction() float64 {
	if r.Stats.TotalEvents == 0 {
		return 0
	}
	return 1 - float64(r.Stats.InvalidEvents())/float64(r.Stats.TotalEvents)
}

// Records is the number of records each processor produced.
func (r AlgoResult) Records() map[string]int {
	records := make(map[string]int, len(r.Stats.Processors))
	for name, counters := range r.Stats.Processors {
		records[name] = counters.Good
	}
	return records
}

// Shared read-only inputs of every job
type benchmark struct {
	config  scanner.Configuration
	chanMap *scanner.ChannelMap
	calib   *scanner.CalibrationStore
	spills  [][]scanner.RawPulse
}

func worker(id int, bench benchmark, jobs <-chan Algorithm, results chan<- AlgoResult) {
	for algorithm := range jobs {
		if configuration.Verbosity > 0 {
			message := fmt.Sprintf("Worker %d running %s", id, algorithm)
			logger.Info(message, "worker")
		}
		results <- runAlgorithm(bench, algorithm)
	}
}

func runAlgorithm(bench benchmark, algorithm Algorithm) (result AlgoResult) {
	result.Algorithm = algorithm
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("recovered from panic running %s: %v", algorithm, r)
		}
	}()

	config := bench.config
	config.TimingMode = algorithm.Timing
	config.EnergyMode = algorithm.Energy

	correlator, err := scanner.NewCorrelator(config, bench.chanMap, bench.calib, nil, nil)
	if err != nil {
		result.Err = err
		return result
	}
	start := time.Now()
	runErr := correlator.Run(context.Background(), scanner.NewMemorySource(bench.spills...))
	closeErr := correlator.Close()
	result.Duration = time.Since(start)
	result.Stats = correlator.Stats()
	if runErr != nil {
		result.Err = runErr
	} else {
		result.Err = closeErr
	}
	return result
}

// runAlgorithms measures every algorithm on a pool of workers and returns
// the results in the order of algos.
func runAlgorithms(bench benchmark, algos []Algorithm, numWorkers int) []AlgoResult {
	jobs := make(chan Algorithm, len(algos))
	results := make(chan AlgoResult, len(algos))

	for w := 1; w <= max(numWorkers, 1); w++ {
		go worker(w, bench, jobs, results)
	}
	for _, algorithm := range algos {
		jobs <- algorithm
	}
	close(jobs)

	byAlgorithm := make(map[Algorithm]AlgoResult, len(algos))
	for range algos {
		result := <-results
		byAlgorithm[result.Algorithm] = result
	}
	ordered := make([]AlgoResult, len(algos))
	for i, algorithm := range algos {
		ordered[i] = byAlgorithm[algorithm]
	}
	return ordered
}
