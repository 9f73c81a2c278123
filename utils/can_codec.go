package utils

import (
	"encoding/binary"
	"fmt"

	"go.einride.tech/can"
)

// EncodeFrame packs values into the named frame's payload. Missing signals
// take their default; values are clamped to the signal range.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}
	for name := range values {
		if _, ok := fd.Signal(name); !ok {
			return nil, 0, fmt.Errorf("frame %s has no signal %q", fd.Name, name)
		}
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		payload = setBits(payload, s.StartBit, s.BitLength, truncate(physToRaw(s, v), s.BitLength))
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], payload)
	out := make([]byte, fd.DLC)
	copy(out, buf[:fd.DLC])
	return out, fd.ID, nil
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)

	return f, nil
}

// DecodeFrame unpacks a payload into physical signal values.
func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, err
	}
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frameID, fd.DLC, len(data))
	}

	var buf [8]byte
	copy(buf[:], data[:fd.DLC])
	payload := binary.LittleEndian.Uint64(buf[:])

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		raw := signExtend(getBits(payload, s.StartBit, s.BitLength), s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

// DecodeEinrideFrame decodes a received can.Frame.
func (m *CANMap) DecodeEinrideFrame(f can.Frame) (string, map[string]float64, error) {
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return "", nil, err
	}
	vals, err := m.DecodeFrame(f.ID, f.Data[:f.Length])
	if err != nil {
		return "", nil, err
	}
	return fd.Name, vals, nil
}
