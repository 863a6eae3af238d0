package scanner

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const deg2rad = math.Pi / 180

type TimeCal struct {
	ID     ChannelID
	Offset float64 // ns
	// Default is set on entries back-filled for ids missing from the file
	Default bool
}

type EnergyCal struct {
	ID           ChannelID
	Coefficients []float64
	Default      bool
}

// CalEnergy evaluates sum_i c_i * x^i. Without coefficients it is the identity.
func (c EnergyCal) CalEnergy(x float64) float64 {
	if len(c.Coefficients) == 0 {
		return x
	}
	return Polynomial(c.Coefficients, x)
}

type PositionCal struct {
	ID    ChannelID
	R0    float64
	Theta float64 // rad
	Phi   float64 // rad
	// Default is set on entries back-filled for ids missing from the file
	Default bool
}

// CalibEntry gathers the three calibrations of one channel. A nil entry
// means identity calibration.
type CalibEntry struct {
	Time     *TimeCal
	Energy   *EnergyCal
	Position *PositionCal
}

func (c *CalibEntry) TimeOffset() float64 {
	if c == nil || c.Time == nil {
		return 0
	}
	return c.Time.Offset
}

func (c *CalibEntry) CalEnergy(x float64) float64 {
	if c == nil || c.Energy == nil {
		return x
	}
	return c.Energy.CalEnergy(x)
}

type CalibrationStore struct {
	Times     []TimeCal
	Energies  []EnergyCal
	Positions []PositionCal
	entries   []*CalibEntry
}

func NewCalibrationStore(times []TimeCal, energies []EnergyCal, positions []PositionCal) *CalibrationStore {
	store := &CalibrationStore{
		Times:     times,
		Energies:  energies,
		Positions: positions,
	}
	size := max(len(times), len(energies), len(positions))
	store.entries = make([]*CalibEntry, size)
	for i := 0; i < size; i++ {
		entry := &CalibEntry{}
		if i < len(times) {
			entry.Time = &store.Times[i]
		}
		if i < len(energies) {
			entry.Energy = &store.Energies[i]
		}
		if i < len(positions) {
			entry.Position = &store.Positions[i]
		}
		store.entries[i] = entry
	}
	return store
}

// Entry returns the calibration of a channel, nil when none of the files
// cover it. It is safe to call on a nil store.
func (s *CalibrationStore) Entry(id ChannelID) *CalibEntry {
	if s == nil || id < 0 || int(id) >= len(s.entries) {
		return nil
	}
	return s.entries[id]
}

// LoadCalibration reads the three calibration files. An empty path leaves
// that kind of calibration out.
func LoadCalibration(timeFile string, energyFile string, positionFile string) (*CalibrationStore, error) {
	var times []TimeCal
	var energies []EnergyCal
	var positions []PositionCal

	if timeFile != "" {
		err := readCalibFile(timeFile, "time calibration", func(r io.Reader) error {
			var err error
			times, err = ReadTimeCalibration(r)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if energyFile != "" {
		err := readCalibFile(energyFile, "energy calibration", func(r io.Reader) error {
			var err error
			energies, err = ReadEnergyCalibration(r)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if positionFile != "" {
		err := readCalibFile(positionFile, "position calibration", func(r io.Reader) error {
			var err error
			positions, err = ReadPositionCalibration(r)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return NewCalibrationStore(times, energies, positions), nil
}

func readCalibFile(filename string, resource string, read func(io.Reader) error) error {
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading %s from %s", resource, filename)
		logger.Info(message, "calibration")
	}
	file, err := os.Open(filename)
	if err != nil {
		return &ConfigError{Resource: resource, Err: err}
	}
	defer file.Close()

	if err := read(file); err != nil {
		return &ConfigError{Resource: resource, Err: fmt.Errorf("%s: %w", filename, err)}
	}
	return nil
}

func ReadTimeCalibration(r io.Reader) ([]TimeCal, error) {
	times := make([]TimeCal, 0)
	err := scanCalibLines(r, "time", func(id int, values []float64) {
		for i := len(times); i < id; i++ {
			times = append(times, TimeCal{ID: ChannelID(i), Default: true})
		}
		cal := TimeCal{ID: ChannelID(id)}
		if len(values) > 0 {
			cal.Offset = values[0]
		}
		times = append(times, cal)
	})
	return times, err
}

func ReadEnergyCalibration(r io.Reader) ([]EnergyCal, error) {
	energies := make([]EnergyCal, 0)
	err := scanCalibLines(r, "energy", func(id int, values []float64) {
		for i := len(energies); i < id; i++ {
			energies = append(energies, EnergyCal{ID: ChannelID(i), Default: true})
		}
		energies = append(energies, EnergyCal{ID: ChannelID(id), Coefficients: values})
	})
	return energies, err
}

func ReadPositionCalibration(r io.Reader) ([]PositionCal, error) {
	positions := make([]PositionCal, 0)
	err := scanCalibLines(r, "position", func(id int, values []float64) {
		for i := len(positions); i < id; i++ {
			positions = append(positions, PositionCal{ID: ChannelID(i), R0: 0.5, Default: true})
		}
		cal := PositionCal{ID: ChannelID(id)}
		if len(values) > 0 {
			cal.R0 = values[0]
		}
		if len(values) > 1 {
			cal.Theta = values[1] * deg2rad
		}
		if len(values) > 2 {
			cal.Phi = values[2] * deg2rad
		}
		positions = append(positions, cal)
	})
	return positions, err
}

// scanCalibLines walks "id value..." lines. Ids must be strictly increasing:
// negative or repeated ids are logged and skipped.
func scanCalibLines(r io.Reader, kind string, add func(id int, values []float64)) error {
	scanner := bufio.NewScanner(r)
	prevID := -1
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		id64, err := strconv.ParseInt(fields[0], 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid id %q", lineNum, fields[0])
		}
		id := int(id64)
		if id < 0 || id <= prevID {
			message := fmt.Sprintf("line %d of %s calibration: invalid id number (%d), ignoring", lineNum, kind, id)
			logger.Error(message)
			continue
		}
		values := make([]float64, 0, len(fields)-1)
		for _, field := range fields[1:] {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid value %q", lineNum, field)
			}
			values = append(values, value)
		}
		add(id, values)
		prevID = id
	}
	return scanner.Err()
}
