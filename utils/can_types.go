package utils

import "sort"

// Frame directions as seen from the supervisor.
const (
	DirectionTX = "tx"
	DirectionRX = "rx"
)

// Frames carried on the vehicle bus.
const (
	FrameActuatorOut0 = "ACTUATOR_OUT_0"
	FrameActuatorOut1 = "ACTUATOR_OUT_1"
	FrameVTOLStatus   = "VTOL_STATUS"
	FramePilotCmd     = "PILOT_CMD"
)

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string // only "little" supported
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Signal returns the named signal definition.
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FramesByDirection returns the frames with the given direction sorted by ID.
func (m *CANMap) FramesByDirection(dir string) []*FrameDef {
	var out []*FrameDef
	for _, fd := range m.ByID {
		if fd.Direction == dir {
			out = append(out, fd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
