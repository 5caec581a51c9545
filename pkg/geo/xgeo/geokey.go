package xgeo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	minLat = -90.0
	maxLat = 90.0
	minLon = -180.0
	maxLon = 180.0

	// CellBits 是 Cell 排序键的总位数（经纬度各 26 位交错）。
	CellBits = 52

	// MaxGeohashPrecision 是 Geohash 支持的最大字符数。
	MaxGeohashPrecision = 12

	geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"
)

// GeoKey 是经过校验的经纬度坐标。
//
// 零值无效（Valid 返回 false），只能通过 NewGeoKey 构造有效值。
type GeoKey struct {
	lat   float64
	lon   float64
	valid bool
}

// NewGeoKey 构造坐标，纬度须在 [-90, 90]，经度须在 [-180, 180]。
func NewGeoKey(lat, lon float64) (GeoKey, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return GeoKey{}, fmt.Errorf("%w: coordinate is NaN", ErrInvalidGeoKey)
	}
	if lat < minLat || lat > maxLat {
		return GeoKey{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidGeoKey, lat)
	}
	if lon < minLon || lon > maxLon {
		return GeoKey{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidGeoKey, lon)
	}
	return GeoKey{lat: lat, lon: lon, valid: true}, nil
}

// MustGeoKey 与 NewGeoKey 相同，但坐标非法时 panic。
// 仅用于常量坐标（测试、示例、内置区域）。
func MustGeoKey(lat, lon float64) GeoKey {
	k, err := NewGeoKey(lat, lon)
	if err != nil {
		panic(err)
	}
	return k
}

// Lat 返回纬度。
func (k GeoKey) Lat() float64 { return k.lat }

// Lon 返回经度。
func (k GeoKey) Lon() float64 { return k.lon }

// Valid 报告坐标是否经过校验。
func (k GeoKey) Valid() bool { return k.valid }

// Point 返回 orb 点（经度在前）。
func (k GeoKey) Point() orb.Point { return orb.Point{k.lon, k.lat} }

// DistanceTo 返回两点之间的球面距离（米）。
func (k GeoKey) DistanceTo(other GeoKey) float64 {
	return geo.DistanceHaversine(k.Point(), other.Point())
}

// String 返回 "lat,lon" 形式。
func (k GeoKey) String() string {
	if !k.valid {
		return "invalid"
	}
	return strconv.FormatFloat(k.lat, 'f', -1, 64) + "," + strconv.FormatFloat(k.lon, 'f', -1, 64)
}

// Cell 返回 52 位交错编码的网格值，相邻区域的值在数值上接近，
// 可直接作为有序集合的 score 或排序键。
func (k GeoKey) Cell() uint64 {
	return interleave(k.lat, k.lon, CellBits)
}

// Geohash 返回指定精度（1..12 个字符）的 base32 geohash。
// 精度越界时截断到合法范围。
func (k GeoKey) Geohash(precision int) string {
	precision = min(max(precision, 1), MaxGeohashPrecision)
	bits := uint(precision * 5)
	code := interleave(k.lat, k.lon, bits)

	buf := make([]byte, precision)
	for i := precision - 1; i >= 0; i-- {
		buf[i] = geohashAlphabet[code&0x1f]
		code >>= 5
	}
	return string(buf)
}

// interleave 按经度优先交错编码 bits 位。
func interleave(lat, lon float64, bits uint) uint64 {
	latLo, latHi := minLat, maxLat
	lonLo, lonHi := minLon, maxLon

	var code uint64
	for i := range bits {
		code <<= 1
		if i%2 == 0 {
			mid := (lonLo + lonHi) / 2
			if lon >= mid {
				code |= 1
				lonLo = mid
			} else {
				lonHi = mid
			}
			continue
		}
		mid := (latLo + latHi) / 2
		if lat >= mid {
			code |= 1
			latLo = mid
		} else {
			latHi = mid
		}
	}
	return code
}
