package utils

import "math"

// bitMask returns n low bits set.
func bitMask(n int) uint64 {
	if n >= 64 {
		return math.MaxUint64
	}
	return uint64(1)<<uint(n) - 1
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	return (payload >> uint(startBit)) & bitMask(bitLen)
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := bitMask(bitLen)
	payload &^= mask << uint(startBit)
	payload |= (value & mask) << uint(startBit)
	return payload
}

// signExtend interprets the low bitLen bits of u as two's complement when
// signed.
func signExtend(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	if u&(uint64(1)<<uint(bitLen-1)) == 0 {
		return int64(u)
	}
	return int64(u | ^bitMask(bitLen))
}

// truncate keeps the low bitLen bits of raw, which is the two's complement
// encoding for negative values.
func truncate(raw int64, bitLen int) uint64 {
	return uint64(raw) & bitMask(bitLen)
}

// rawRange returns the representable raw range of a signal.
func rawRange(bitLen int, signed bool) (lo, hi int64) {
	if bitLen >= 63 {
		if signed {
			return math.MinInt64, math.MaxInt64
		}
		return 0, math.MaxInt64
	}
	if !signed {
		return 0, int64(bitMask(bitLen))
	}
	half := int64(1) << uint(bitLen-1)
	return -half, half - 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// physToRaw scales a physical value into the signal's raw integer, clamped to
// both the physical range and the bit width.
func physToRaw(s SignalDef, v float64) int64 {
	if s.Max > s.Min {
		v = clamp(v, s.Min, s.Max)
	}
	rf := math.Round((v - s.Offset) / s.Factor)
	lo, hi := rawRange(s.BitLength, s.Signed)
	if rf <= float64(lo) {
		return lo
	}
	if rf >= float64(hi) {
		return hi
	}
	return int64(rf)
}
