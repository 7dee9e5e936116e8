// Package wkb encodes road geometries as PostGIS extended WKB
package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

const (
	wkbPoint      = 1
	wkbLineString = 2

	// set on the type word when an SRID follows
	wkbSRIDFlag = 0x20000000
)

// Encoder writes little-endian EWKB with an SRID. The returned slices are
// reused by the next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for the given SRID
func NewEncoder(srid int) *Encoder {
	return &Encoder{buf: make([]byte, 0, 256), srid: uint32(srid)}
}

// SRID returns the SRID written into every geometry
func (e *Encoder) SRID() int { return int(e.srid) }

// Point encodes a single point
func (e *Encoder) Point(p orb.Point) []byte {
	e.header(wkbPoint, 16)
	e.appendPoint(p)
	return e.buf
}

// LineString encodes a line. Points are written as x=lon, y=lat, or as
// projected x/y when the line has been projected.
func (e *Encoder) LineString(line orb.LineString) []byte {
	e.header(wkbLineString, 4+len(line)*16)
	e.appendUint32(uint32(len(line)))
	for _, p := range line {
		e.appendPoint(p)
	}
	return e.buf
}

// header resets the buffer and writes byte order, type and SRID
func (e *Encoder) header(geomType uint32, body int) {
	need := 9 + body
	if cap(e.buf) < need {
		e.buf = make([]byte, 0, need)
	}
	e.buf = e.buf[:0]
	e.buf = append(e.buf, 0x01)
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
