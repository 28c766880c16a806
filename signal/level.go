package signal

import "math"

// Level maps between unsigned converter codes and a signed signal where
// 1.0 is full scale.
type Level struct {
	Offset float64
	Scale  float64
}

func (l Level) Code(v float64) uint16 {
	c := math.Round(l.Offset + v*l.Scale)
	switch {
	case c < 0:
		return 0
	case c > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(c)
}

func (l Level) Float(c uint16) float64 {
	if l.Scale == 0 {
		return 0
	}
	return (float64(c) - l.Offset) / l.Scale
}
