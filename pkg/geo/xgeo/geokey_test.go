package xgeo

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeoKey_Validation(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"rome", 41.8902, 12.4922, false},
		{"north pole", 90, 0, false},
		{"antimeridian", 0, -180, false},
		{"lat too high", 90.0001, 0, true},
		{"lat too low", -91, 0, true},
		{"lon too high", 0, 180.5, true},
		{"lon too low", 0, -181, true},
		{"nan lat", math.NaN(), 0, true},
		{"nan lon", 0, math.NaN(), true},
		{"inf lat", math.Inf(1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewGeoKey(tt.lat, tt.lon)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidGeoKey)
				assert.ErrorIs(t, err, ErrInvalidQuery)
				assert.False(t, k.Valid())
				return
			}
			require.NoError(t, err)
			assert.True(t, k.Valid())
			assert.Equal(t, tt.lat, k.Lat())
			assert.Equal(t, tt.lon, k.Lon())
		})
	}
}

func TestGeoKey_ZeroValueIsInvalid(t *testing.T) {
	var k GeoKey
	assert.False(t, k.Valid())
	assert.Equal(t, "invalid", k.String())
}

func TestMustGeoKey_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustGeoKey(100, 0) })
	assert.NotPanics(t, func() { MustGeoKey(45, 9) })
}

func TestGeoKey_Geohash(t *testing.T) {
	// 经典样例：57.64911,10.40744 -> u4pruydqqvj
	k := MustGeoKey(57.64911, 10.40744)
	assert.Equal(t, "u4pruydqqvj", k.Geohash(11))
	assert.Equal(t, "u4pru", k.Geohash(5))

	// 精度越界截断
	assert.Len(t, k.Geohash(0), 1)
	assert.Len(t, k.Geohash(99), MaxGeohashPrecision)
}

func TestGeoKey_GeohashPrefixSharedByNeighbours(t *testing.T) {
	a := MustGeoKey(41.8902, 12.4922)
	b := MustGeoKey(41.8905, 12.4925)
	assert.True(t, strings.HasPrefix(b.Geohash(12), a.Geohash(6)))
}

func TestGeoKey_Cell(t *testing.T) {
	k := MustGeoKey(41.8902, 12.4922)
	assert.Less(t, k.Cell(), uint64(1)<<CellBits)

	// Cell 的高位与 geohash 一致
	gh := MustGeoKey(57.64911, 10.40744)
	assert.Equal(t, gh.Cell()>>(CellBits-50), interleave(gh.Lat(), gh.Lon(), 50))
}

func TestGeoKey_DistanceTo(t *testing.T) {
	colosseum := MustGeoKey(41.8902, 12.4922)
	pantheon := MustGeoKey(41.8986, 12.4769)

	d := colosseum.DistanceTo(pantheon)
	assert.InDelta(t, 1560, d, 30)
	assert.Zero(t, colosseum.DistanceTo(colosseum))
	assert.InDelta(t, d, pantheon.DistanceTo(colosseum), 1e-9)
}

func TestDistance_Validate(t *testing.T) {
	assert.NoError(t, Km(2).Validate())
	assert.ErrorIs(t, Km(0).Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Km(-1).Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, Distance{Value: 1, Unit: "parsec"}.Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, Km(math.Inf(1)).Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, M(math.NaN()).Validate(), ErrInvalidRadius)
}

func TestUnit_Conversion(t *testing.T) {
	assert.InDelta(t, 2000, Km(2).Meters(), 1e-9)
	assert.InDelta(t, 1609.344, Distance{Value: 1, Unit: UnitMiles}.Meters(), 1e-9)
	assert.InDelta(t, 0.3048, Distance{Value: 1, Unit: UnitFeet}.Meters(), 1e-9)
	assert.InDelta(t, 1.9, UnitKilometers.FromMeters(1900), 1e-9)

	u, err := ParseUnit(" KM ")
	require.NoError(t, err)
	assert.Equal(t, UnitKilometers, u)

	u, err = ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitMeters, u)

	_, err = ParseUnit("yard")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
