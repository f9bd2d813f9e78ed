package geopackage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"diglet/internal/geometry"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x01 << 1
	flagEmpty        = 0x01 << 4
	envelopeMask     = 0x0e
)

var ErrNotGeoPackageBlob = errors.New("geopackage: not a GeoPackage geometry blob")

// EncodeBlob serializes g as a StandardGeoPackageBinary blob: the "GP" header
// with srs id and XY envelope followed by little-endian ISO WKB.
func EncodeBlob(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}

	empty := geometry.IsEmpty(g)
	flags := byte(flagLittleEndian)
	headerLen := 8
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
		headerLen += 32
	}

	out := make([]byte, headerLen, headerLen+len(body))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(srid)))
	if !empty {
		b := g.Bounds()
		for i, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			binary.LittleEndian.PutUint64(out[8+i*8:], math.Float64bits(v))
		}
	}
	return append(out, body...), nil
}

// DecodeBlob parses a StandardGeoPackageBinary blob and returns the geometry
// and its srs id.
func DecodeBlob(b []byte) (geom.T, int, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, ErrNotGeoPackageBlob
	}
	flags := b[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(b[4:8])))

	var envelope int
	switch (flags & envelopeMask) >> 1 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, fmt.Errorf("geopackage: bad envelope flags %#x", flags)
	}
	if len(b) < 8+envelope {
		return nil, 0, ErrNotGeoPackageBlob
	}

	g, err := wkb.Unmarshal(b[8+envelope:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode wkb: %w", err)
	}
	return g, srid, nil
}
