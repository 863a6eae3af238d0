package hdf5out

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

type GenericHDF5 struct {
	flush     int32
	channelID int32
	location  int32
	energy    float64
	time      float64
	phase     float64
	tof       float64
	hasStart  int8
}

type TriggerHDF5 struct {
	flush     int32
	channelID int32
	energy    float64
	rawTime   uint64
	phase     float64
}

type VandleHDF5 struct {
	flush       int32
	location    int32
	tdiff       float64
	position    float64
	leftEnergy  float64
	rightEnergy float64
	qdc         float64
	tof         float64
	hasStart    int8
}

type PhoswichHDF5 struct {
	flush     int32
	channelID int32
	location  int32
	time      float64
	fastQdc   float64
	slowQdc   float64
	fitted    int8
	fitA      float64
	fitMPV    float64
	fitSigma  float64
	fitChi2   float64
	fitPhase  float64
}

type RawHDF5 struct {
	flush     int32
	channelID int32
	timestamp uint64
	rawEnergy int32
	isStart   int8
	valid     int8
	time      float64
}

// TraceHDF5 locates the samples of one trace in the trace_samples table.
type TraceHDF5 struct {
	flush     int32
	channelID int32
	timestamp uint64
	offset    int64
	length    int32
}

type WindowHDF5 struct {
	flush  int32
	start  uint64
	length uint64
	pulses int32
	starts int32
}

type RunSummaryHDF5 struct {
	totalEvents    int64
	startEvents    int64
	firstEventTime float64
	deltaEventTime float64
	dropped        int64
	flushes        int64
	orphanedPairs  int64
}

// CounterHDF5 is a named counter, used for processor and invalid pulse counts.
type CounterHDF5 struct {
	name       [STRLEN]byte
	total      int64
	good       int64
	incomplete int64
}

const STRLEN = 20

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func boolToInt8(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	// create property list
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	chunks := []uint{32768}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	if err := plist.SetDeflate(compression); err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	// create the memory data type
	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

// table is an extendable dataset and the number of rows it holds.
type table struct {
	name    string
	dataset *hdf5.Dataset
	rows    int
}

func newTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*table, error) {
	dataset, err := createTable(group, name, datatype, compression)
	if err != nil {
		return nil, err
	}
	return &table{name: name, dataset: dataset}, nil
}

func (t *table) Close() error {
	return t.dataset.Close()
}

func appendRows[T any](t *table, data []T) error {
	if len(data) == 0 {
		return nil
	}
	if err := writeArrayToTable(t.dataset, &data, t.rows); err != nil {
		return &ErrWriteTable{TableName: t.name, Err: err}
	}
	t.rows += len(data)
	return nil
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, rowsInFile int) error {
	length := uint(len(*data))
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("error creating dataspace: %w", err)
	}
	defer dataspace.Close()

	// extend
	offset := uint(rowsInFile)
	newsize := []uint{offset + length}
	if err := dataset.Resize(newsize); err != nil {
		return fmt.Errorf("error resizing dataset: %w", err)
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{offset}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting hyperslab: %w", err)
	}

	err = dataset.WriteSubset(data, dataspace, filespace)
	if err != nil {
		return fmt.Errorf("error writing subset: %w", err)
	}
	return nil
}
