package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	scanner "github.com/next-exp/scanner_go/pkg"
)

// FileReader chains the spill files of a run into a single source, skipping
// the first pulses and stopping after the configured maximum.
type FileReader struct {
	filenames []string
	next      int
	file      *os.File
	reader    *scanner.SpillReader
	skip      int
	maxEvents int
	EvtCount  int
}

func NewFileReader(filenames []string, skip int, maxEvents int) *FileReader {
	return &FileReader{
		filenames: filenames,
		skip:      skip,
		maxEvents: maxEvents,
		EvtCount:  -1,
	}
}

func (f *FileReader) Next() (scanner.RawPulse, error) {
	for {
		if f.reader == nil {
			if err := f.openNext(); err != nil {
				return scanner.RawPulse{}, err
			}
		}
		pulse, err := f.reader.Next()
		if err == io.EOF {
			if err := f.closeCurrent(); err != nil {
				return scanner.RawPulse{}, err
			}
			continue
		}
		if err != nil {
			return pulse, err
		}

		f.EvtCount++
		if f.EvtCount >= f.maxEvents {
			if configuration.Verbosity > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return scanner.RawPulse{}, io.EOF
		}
		if f.EvtCount < f.skip {
			if configuration.Verbosity > 2 {
				message := fmt.Sprintf("Skipping pulse %d", f.EvtCount)
				logger.Info(message, "fileReader")
			}
			continue
		}
		return pulse, nil
	}
}

func (f *FileReader) openNext() error {
	if f.next >= len(f.filenames) {
		return io.EOF
	}
	filename := f.filenames[f.next]
	f.next++
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading file: %s", filename)
		logger.Info(message, "fileReader")
	}
	f.file = file
	f.reader = scanner.NewSpillReader(bufio.NewReader(file))
	return nil
}

func (f *FileReader) closeCurrent() error {
	if f.file == nil {
		return nil
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Closing file %s after %d spills", f.file.Name(), f.reader.SpillCount)
		logger.Info(message, "fileReader")
	}
	err := f.file.Close()
	f.file = nil
	f.reader = nil
	return err
}

func (f *FileReader) Close() error {
	return f.closeCurrent()
}
