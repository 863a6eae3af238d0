package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// MapEntry describes one physical detector channel.
type MapEntry struct {
	ID       ChannelID
	Type     string
	Subtype  string
	Location int
	// Ordered per-channel algorithm parameters (CFD fraction, fit shape...)
	Args    []float64
	IsStart bool
}

// Arg returns the i-th algorithm parameter if the map provides it.
func (e *MapEntry) Arg(i int) (float64, bool) {
	if e == nil || i < 0 || i >= len(e.Args) {
		return 0, false
	}
	return e.Args[i], true
}

// ChannelMap is indexed by ChannelID. It is read-only once built.
type ChannelMap struct {
	entries []*MapEntry
	types   []string
}

func NewChannelMap(entries []MapEntry) (*ChannelMap, error) {
	chMap := &ChannelMap{}
	seenTypes := make(map[string]bool)
	for i := range entries {
		entry := entries[i]
		if entry.ID < 0 || entry.ID >= NewChannelID(MaxModules, 0) {
			return nil, fmt.Errorf("invalid channel id %d, modules go up to %d", entry.ID, MaxModules-1)
		}
		if entry.Type == "" {
			return nil, fmt.Errorf("channel %d has no detector type", entry.ID)
		}
		for int(entry.ID) >= len(chMap.entries) {
			chMap.entries = append(chMap.entries, nil)
		}
		if chMap.entries[entry.ID] != nil {
			return nil, fmt.Errorf("channel %d (module %d, channel %d) defined twice",
				entry.ID, entry.ID.Module(), entry.ID.Channel())
		}
		chMap.entries[entry.ID] = &entry
		if !seenTypes[entry.Type] {
			seenTypes[entry.Type] = true
			chMap.types = append(chMap.types, entry.Type)
		}
	}
	sort.Strings(chMap.types)
	return chMap, nil
}

func (m *ChannelMap) Lookup(id ChannelID) (*MapEntry, bool) {
	if id < 0 || int(id) >= len(m.entries) || m.entries[id] == nil {
		return nil, false
	}
	return m.entries[id], true
}

// Size is the length of the linear channel index (highest id + 1).
func (m *ChannelMap) Size() int {
	return len(m.entries)
}

// Entries returns the defined channels in ascending id order.
func (m *ChannelMap) Entries() []*MapEntry {
	entries := make([]*MapEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Types returns the distinct detector types, sorted.
func (m *ChannelMap) Types() []string {
	return m.types
}

func LoadMapFile(filename string) (*ChannelMap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ConfigError{Resource: "channel map", Err: err}
	}
	defer file.Close()

	chMap, err := ReadMap(file)
	if err != nil {
		return nil, &ConfigError{Resource: "channel map", Err: fmt.Errorf("%s: %w", filename, err)}
	}
	return chMap, nil
}

// ReadMap parses the whitespace separated map format:
//
//	module channel type[:subtype] location [args...] [start]
//
// Lines starting with '#' are comments. Modules go from 0 to MaxModules-1.
//
// The meaning of args depends on the timing mode of the run. With
// constant_fraction args[0] is the CFD fraction. With curve_fit args[0] and
// args[1] are the beta and gamma of the pulse shape, so a map written for
// one mode must not be reused for the other.
func ReadMap(r io.Reader) (*ChannelMap, error) {
	entries := make([]MapEntry, 0)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseMapLine(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewChannelMap(entries)
}

func parseMapLine(fields []string) (MapEntry, error) {
	var entry MapEntry
	if len(fields) < 4 {
		return entry, fmt.Errorf("expected at least 4 fields, found %d", len(fields))
	}
	module, err := strconv.Atoi(fields[0])
	if err != nil || module < 0 || module >= MaxModules {
		return entry, fmt.Errorf("invalid module %q", fields[0])
	}
	channel, err := strconv.Atoi(fields[1])
	if err != nil || channel < 0 || channel >= ChannelsPerModule {
		return entry, fmt.Errorf("invalid channel %q", fields[1])
	}
	entry.ID = NewChannelID(module, channel)
	entry.Type, entry.Subtype, _ = strings.Cut(fields[2], ":")
	entry.Location, err = strconv.Atoi(fields[3])
	if err != nil {
		return entry, fmt.Errorf("invalid location %q", fields[3])
	}
	args, isStart, err := parseArgs(fields[4:])
	if err != nil {
		return entry, err
	}
	entry.Args = args
	entry.IsStart = isStart
	return entry, nil
}

func parseArgs(fields []string) ([]float64, bool, error) {
	args := make([]float64, 0, len(fields))
	isStart := false
	for _, field := range fields {
		if field == "start" {
			isStart = true
			continue
		}
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid argument %q", field)
		}
		args = append(args, value)
	}
	return args, isStart, nil
}
