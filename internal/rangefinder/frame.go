package rangefinder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameSize is the length of a TF-Luna serial data frame in bytes
	FrameSize = 9

	syncByte = 0x59
)

var (
	// ErrShortFrame is returned when fewer than FrameSize bytes are available
	ErrShortFrame = errors.New("short frame")

	// ErrNoSync is returned when the frame does not start with the 0x59 0x59 marker
	ErrNoSync = errors.New("frame sync marker not found")
)

var syncMarker = []byte{syncByte, syncByte}

// Sample is one decoded rangefinder measurement
type Sample struct {
	Distance    float64 // Distance to the ground in meters
	Strength    int     // Signal strength, unitless
	Temperature float64 // Sensor chip temperature in degrees Celsius
}

// Decode parses a TF-Luna frame:
//
//	[0x59][0x59][dist LE u16, cm][strength LE u16][temp LE u16, raw][unused]
//
// Temperature is raw/8 - 256 °C. Bytes past FrameSize are ignored.
func Decode(frame []byte) (Sample, error) {
	if len(frame) < FrameSize {
		return Sample{}, fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, len(frame), FrameSize)
	}

	if frame[0] != syncByte || frame[1] != syncByte {
		return Sample{}, fmt.Errorf("%w: got 0x%02x 0x%02x", ErrNoSync, frame[0], frame[1])
	}

	distance := binary.LittleEndian.Uint16(frame[2:4])
	strength := binary.LittleEndian.Uint16(frame[4:6])
	temperature := binary.LittleEndian.Uint16(frame[6:8])

	return Sample{
		Distance:    float64(distance) / 100.0,
		Strength:    int(strength),
		Temperature: float64(temperature)/8.0 - 256.0,
	}, nil
}

// Checksum returns the low byte of the sum of the first eight frame bytes.
// frame must hold at least FrameSize-1 bytes.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[:FrameSize-1] {
		sum += b
	}
	return sum
}
