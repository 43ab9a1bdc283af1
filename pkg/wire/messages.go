package wire

import "github.com/riftlab/dra/pkg/stategraph"

// The concrete message types of the job-coordination protocol, grounded in
// original_source/dra/include/messages.hpp. Kind tags are imported from
// pkg/stategraph so the two packages agree on them without either
// depending on the other's types.

// Configure bootstraps a worker's analysis runtime with the shared config
// file and the worker's stable index.
type Configure struct {
	ConfigPath  string
	WorkerIndex int32
}

func (m *Configure) Kind() string { return stategraph.KindConfigure }

func (m *Configure) WriteTo(e *Encoder) {
	e.WriteString(m.ConfigPath)
	e.WriteInt32(m.WorkerIndex)
}

func (m *Configure) ReadFrom(d *Decoder) error {
	var err error
	if m.ConfigPath, err = d.ReadString(); err != nil {
		return err
	}
	if m.WorkerIndex, err = d.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// Process asks a worker to process the half-open event range [First, Last)
// of file FileIndex in dataset DatasetIndex. FilesFingerprint lets the
// worker assert it read the same ordered file list as the master.
type Process struct {
	DatasetIndex     int32
	FileIndex        uint32
	FilesFingerprint uint64
	First            uint64
	Last             uint64
}

func (m *Process) Kind() string { return stategraph.KindProcess }

func (m *Process) WriteTo(e *Encoder) {
	e.WriteInt32(m.DatasetIndex)
	e.WriteUint32(m.FileIndex)
	e.WriteUint64(m.FilesFingerprint)
	e.WriteUint64(m.First)
	e.WriteUint64(m.Last)
}

func (m *Process) ReadFrom(d *Decoder) error {
	var err error
	if m.DatasetIndex, err = d.ReadInt32(); err != nil {
		return err
	}
	if m.FileIndex, err = d.ReadUint32(); err != nil {
		return err
	}
	if m.FilesFingerprint, err = d.ReadUint64(); err != nil {
		return err
	}
	if m.First, err = d.ReadUint64(); err != nil {
		return err
	}
	if m.Last, err = d.ReadUint64(); err != nil {
		return err
	}
	return nil
}

// KindProcessResponse is the wire tag for ProcessResponse. It is distinct
// from stategraph.KindProcess: the state graph labels the *request*
// transition, but the reply needs its own registry entry so Channel can
// tell the two frame shapes apart.
const KindProcessResponse = "PROCRSLT"

// ProcessResponse reports the outcome of a Process request: the file's
// true event count (discovered on a worker's first touch of that file)
// plus accounting statistics.
type ProcessResponse struct {
	FileNEvents uint64
	NBytesRead  uint64
	RealSeconds float32
	CPUSeconds  float32
}

func (m *ProcessResponse) Kind() string { return KindProcessResponse }

func (m *ProcessResponse) WriteTo(e *Encoder) {
	e.WriteUint64(m.FileNEvents)
	e.WriteUint64(m.NBytesRead)
	e.WriteFloat32(m.RealSeconds)
	e.WriteFloat32(m.CPUSeconds)
}

func (m *ProcessResponse) ReadFrom(d *Decoder) error {
	var err error
	if m.FileNEvents, err = d.ReadUint64(); err != nil {
		return err
	}
	if m.NBytesRead, err = d.ReadUint64(); err != nil {
		return err
	}
	if m.RealSeconds, err = d.ReadFloat32(); err != nil {
		return err
	}
	if m.CPUSeconds, err = d.ReadFloat32(); err != nil {
		return err
	}
	return nil
}

// Close finalizes a worker's per-dataset output file.
type Close struct {
	DatasetIndex     int32
	FilesFingerprint uint64
}

func (m *Close) Kind() string { return stategraph.KindClose }

func (m *Close) WriteTo(e *Encoder) {
	e.WriteInt32(m.DatasetIndex)
	e.WriteUint64(m.FilesFingerprint)
}

func (m *Close) ReadFrom(d *Decoder) error {
	var err error
	if m.DatasetIndex, err = d.ReadInt32(); err != nil {
		return err
	}
	if m.FilesFingerprint, err = d.ReadUint64(); err != nil {
		return err
	}
	return nil
}

// Merge asks the worker holding WorkerA's output to merge WorkerB's output
// file into it. The response is an identical Merge value: the survivor is
// always WorkerA.
type Merge struct {
	DatasetIndex int32
	WorkerA      int32
	WorkerB      int32
}

func (m *Merge) Kind() string { return stategraph.KindMerge }

func (m *Merge) WriteTo(e *Encoder) {
	e.WriteInt32(m.DatasetIndex)
	e.WriteInt32(m.WorkerA)
	e.WriteInt32(m.WorkerB)
}

func (m *Merge) ReadFrom(d *Decoder) error {
	var err error
	if m.DatasetIndex, err = d.ReadInt32(); err != nil {
		return err
	}
	if m.WorkerA, err = d.ReadInt32(); err != nil {
		return err
	}
	if m.WorkerB, err = d.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// Stop asks the peer to terminate cleanly. It carries no fields.
type Stop struct{}

func (m *Stop) Kind() string              { return stategraph.KindStop }
func (m *Stop) WriteTo(e *Encoder)        {}
func (m *Stop) ReadFrom(d *Decoder) error { return nil }

// RegisterJobMessages registers every concrete job-protocol message type
// with reg. Called explicitly from main() rather than from an init(), so
// startup order stays deterministic and visible at the call site.
func RegisterJobMessages(reg *Registry) {
	reg.Register(stategraph.KindConfigure, func() Message { return &Configure{} })
	reg.Register(stategraph.KindProcess, func() Message { return &Process{} })
	reg.Register(KindProcessResponse, func() Message { return &ProcessResponse{} })
	reg.Register(stategraph.KindClose, func() Message { return &Close{} })
	reg.Register(stategraph.KindMerge, func() Message { return &Merge{} })
	reg.Register(stategraph.KindStop, func() Message { return &Stop{} })
}
