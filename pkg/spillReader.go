package scanner

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// SpillMagic marks the start of every spill ("SPIL").
const SpillMagic uint32 = 0x5350494C

// ErrEndOfSpill is returned by a Source after the last pulse of a spill.
// The correlator flushes when it sees it.
var ErrEndOfSpill = errors.New("end of spill")

// Source yields raw pulses in arrival order. It returns ErrEndOfSpill
// between spills and io.EOF at the end of the input.
type Source interface {
	Next() (RawPulse, error)
}

type SpillHeader struct {
	Magic   uint32
	SpillID uint32
	NPulses uint32
}

type PulseHeader struct {
	Module    uint16
	Channel   uint16
	Timestamp uint64
	Energy    uint16
	TraceLen  uint16
}

// SpillReader decodes the little-endian spill format:
//
//	SpillHeader, then NPulses times (PulseHeader, TraceLen uint16 samples)
type SpillReader struct {
	r          io.Reader
	header     SpillHeader
	remaining  uint32
	inSpill    bool
	SpillCount int
	PulseCount int
}

func NewSpillReader(r io.Reader) *SpillReader {
	return &SpillReader{r: r}
}

// SpillID returns the id of the spill being read.
func (s *SpillReader) SpillID() uint32 {
	return s.header.SpillID
}

func (s *SpillReader) Next() (RawPulse, error) {
	if s.inSpill && s.remaining == 0 {
		s.inSpill = false
		return RawPulse{}, ErrEndOfSpill
	}
	if !s.inSpill {
		if err := s.readSpillHeader(); err != nil {
			return RawPulse{}, err
		}
		return s.Next()
	}

	var header PulseHeader
	if err := binary.Read(s.r, binary.LittleEndian, &header); err != nil {
		return RawPulse{}, fmt.Errorf("error reading pulse header in spill %d: %w", s.header.SpillID, noEOF(err))
	}
	trace := make([]uint16, header.TraceLen)
	if err := binary.Read(s.r, binary.LittleEndian, trace); err != nil {
		return RawPulse{}, fmt.Errorf("error reading trace in spill %d: %w", s.header.SpillID, noEOF(err))
	}
	s.remaining--
	s.PulseCount++
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Pulse module %d channel %d timestamp %d samples %d",
			header.Module, header.Channel, header.Timestamp, header.TraceLen)
		logger.Info(message, "spillReader")
	}
	return RawPulse{
		Module:    header.Module,
		Channel:   header.Channel,
		Timestamp: header.Timestamp,
		Energy:    header.Energy,
		Trace:     trace,
	}, nil
}

func (s *SpillReader) readSpillHeader() error {
	var header SpillHeader
	err := binary.Read(s.r, binary.LittleEndian, &header)
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("error reading spill header: %w", err)
	}
	if header.Magic != SpillMagic {
		return fmt.Errorf("invalid spill magic 0x%08x", header.Magic)
	}
	s.header = header
	s.remaining = header.NPulses
	s.inSpill = true
	s.SpillCount++
	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("Spill %d with %d pulses", header.SpillID, header.NPulses)
		logger.Info(message, "spillReader")
	}
	return nil
}

// A truncated spill is corrupt, it must not look like a clean end of input.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func WriteSpill(w io.Writer, spillID uint32, pulses []RawPulse) error {
	header := SpillHeader{Magic: SpillMagic, SpillID: spillID, NPulses: uint32(len(pulses))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("error writing spill header: %w", err)
	}
	for _, pulse := range pulses {
		pulseHeader := PulseHeader{
			Module:    pulse.Module,
			Channel:   pulse.Channel,
			Timestamp: pulse.Timestamp,
			Energy:    pulse.Energy,
			TraceLen:  uint16(len(pulse.Trace)),
		}
		if err := binary.Write(w, binary.LittleEndian, pulseHeader); err != nil {
			return fmt.Errorf("error writing pulse header: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, pulse.Trace); err != nil {
			return fmt.Errorf("error writing trace: %w", err)
		}
	}
	return nil
}

// ReadSpills loads a whole spill file into memory, one slice per spill.
func ReadSpills(r io.Reader) ([][]RawPulse, error) {
	reader := NewSpillReader(r)
	spills := make([][]RawPulse, 0)
	current := make([]RawPulse, 0)
	for {
		pulse, err := reader.Next()
		if err == io.EOF {
			return spills, nil
		}
		if errors.Is(err, ErrEndOfSpill) {
			spills = append(spills, current)
			current = make([]RawPulse, 0)
			continue
		}
		if err != nil {
			return spills, err
		}
		current = append(current, pulse)
	}
}

// MemorySource replays spills held in memory.
type MemorySource struct {
	spills [][]RawPulse
	spill  int
	pulse  int
}

func NewMemorySource(spills ...[]RawPulse) *MemorySource {
	return &MemorySource{spills: spills}
}

func (m *MemorySource) Next() (RawPulse, error) {
	if m.spill >= len(m.spills) {
		return RawPulse{}, io.EOF
	}
	if m.pulse >= len(m.spills[m.spill]) {
		m.spill++
		m.pulse = 0
		return RawPulse{}, ErrEndOfSpill
	}
	pulse := m.spills[m.spill][m.pulse]
	m.pulse++
	return pulse, nil
}

// Len returns the total number of pulses.
func (m *MemorySource) Len() int {
	n := 0
	for _, spill := range m.spills {
		n += len(spill)
	}
	return n
}
