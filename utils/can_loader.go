package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// LoadCANMap reads a can_map.csv file.
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseCANMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseCANMap reads the CSV layout: one row per signal, frames grouped by
// frame_id. Rows starting with '#' are comments.
func ParseCANMap(rd io.Reader) (*CANMap, error) {
	r := csv.NewReader(rd)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	req := []string{
		"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
		"signal_name", "start_bit", "bit_length", "endianness",
		"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
	}
	for _, k := range req {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can_map.csv missing required column: %q", k)
		}
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		p := rowParser{rec: rec, idx: idx}

		frameID, err := parseHexOrDecUint32(p.field("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid frame_id %q: %w", line, p.field("frame_id"), err)
		}

		frameName := p.field("frame_name")
		direction := strings.ToLower(p.field("direction"))

		cycleMS := p.intField("cycle_ms")
		dlc := p.intField("dlc")

		sig := SignalDef{
			Name:       p.field("signal_name"),
			StartBit:   p.intField("start_bit"),
			BitLength:  p.intField("bit_length"),
			Endianness: p.field("endianness"),
			Signed:     p.boolField("signed"),
			Factor:     p.floatField("factor"),
			Offset:     p.floatField("offset"),
			Min:        p.floatField("min"),
			Max:        p.floatField("max"),
			Default:    p.floatField("default"),
			Unit:       p.field("unit"),
			Comment:    p.field("comment"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("row %d (%s.%s): %w", line, frameName, sig.Name, p.err)
		}

		if direction != DirectionTX && direction != DirectionRX {
			return nil, fmt.Errorf("frame %s: direction must be tx or rx, got %q", frameName, direction)
		}
		if sig.Endianness != "" && sig.Endianness != "little" {
			return nil, fmt.Errorf("frame %s signal %s: unsupported endianness %q (only little supported)",
				frameName, sig.Name, sig.Endianness)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 {
			return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", frameName, sig.Name, sig.BitLength)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("frame %s signal %s: factor must be non-zero", frameName, sig.Name)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}
		if sig.StartBit < 0 || sig.StartBit+sig.BitLength > 8*dlc {
			return nil, fmt.Errorf("frame %s signal %s: bits %d..%d exceed dlc %d",
				frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength-1, dlc)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			if _, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("frame name %s used by two frame ids", frameName)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: direction,
				CycleMS:   cycleMS,
				Signals:   []SignalDef{},
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}

		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
		for i := 1; i < len(fd.Signals); i++ {
			prev, cur := fd.Signals[i-1], fd.Signals[i]
			if prev.StartBit+prev.BitLength > cur.StartBit {
				return nil, fmt.Errorf("frame %s: signals %s and %s overlap", fd.Name, prev.Name, cur.Name)
			}
		}
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

// rowParser converts CSV fields and keeps the first conversion error.
type rowParser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *rowParser) field(col string) string {
	i := p.idx[col]
	if i >= len(p.rec) {
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) intField(col string) int {
	s := p.field(col)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", col, err)
	}
	return v
}

func (p *rowParser) floatField(col string) float64 {
	s := p.field(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", col, err)
	}
	return v
}

func (p *rowParser) boolField(col string) bool {
	switch strings.ToLower(p.field(col)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
