package core

import (
	"errors"
	"math"
)

// LatLon is a coordinate pair in degrees
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ErrInvalidPolyline is returned for truncated polyline strings
var ErrInvalidPolyline = errors.New("invalid polyline: unexpected end of string")

// EncodePolyline encodes points in the Polyline5 format (1e-5 precision).
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func EncodePolyline(points []LatLon) string {
	if len(points) == 0 {
		return ""
	}

	out := make([]byte, 0, len(points)*12)
	var prevLat, prevLon int
	for _, p := range points {
		lat := int(math.Round(p.Lat * 1e5))
		lon := int(math.Round(p.Lon * 1e5))
		out = appendSigned(out, lat-prevLat)
		out = appendSigned(out, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(out)
}

// DecodePolyline reverses EncodePolyline
func DecodePolyline(s string) ([]LatLon, error) {
	points := make([]LatLon, 0, len(s)/8+1)
	var lat, lon int
	for i := 0; i < len(s); {
		var dLat, dLon int
		var err error
		if dLat, i, err = decodeSigned(s, i); err != nil {
			return nil, err
		}
		if i >= len(s) {
			return nil, ErrInvalidPolyline
		}
		if dLon, i, err = decodeSigned(s, i); err != nil {
			return nil, err
		}
		lat += dLat
		lon += dLon
		points = append(points, LatLon{Lat: float64(lat) * 1e-5, Lon: float64(lon) * 1e-5})
	}
	return points, nil
}

func decodeSigned(s string, i int) (delta, next int, err error) {
	var result, shift int
	for {
		if i >= len(s) {
			return 0, 0, ErrInvalidPolyline
		}
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	return (result >> 1) ^ -(result & 1), i, nil
}

// appendSigned zigzag encodes v in 5-bit chunks
func appendSigned(buf []byte, v int) []byte {
	s := v << 1
	if v < 0 {
		s = ^s
	}
	for s >= 0x20 {
		buf = append(buf, byte((0x20|(s&0x1f))+63))
		s >>= 5
	}
	return append(buf, byte(s+63))
}
