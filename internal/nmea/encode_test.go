package nmea

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/require"

	"gpstether/internal/fix"
)

func testSnapshot(sats int) fix.Snapshot {
	s := fix.Snapshot{
		Valid: true,
		Fix: fix.Fix{
			LatDeg:  34.5,
			LonDeg:  -118.25,
			AltM:    123.45,
			SpeedMS: 10,
			// 10:11:12.345 local, 17:11:12.345 UTC
			Time: time.Date(2024, 7, 4, 10, 11, 12, 345_000_000, time.FixedZone("PDT", -7*3600)),
			PDOP: 1.8,
			HDOP: 0.9,
			VDOP: 1.5,
		},
	}
	for i := 0; i < sats; i++ {
		s.Satellites = append(s.Satellites, i+3)
	}
	return s
}

func trimCRLF(t *testing.T, s string) string {
	t.Helper()
	require.True(t, strings.HasSuffix(s, "\r\n"), "missing CRLF in %q", s)
	return strings.TrimSuffix(s, "\r\n")
}

func TestChecksumProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 500; n++ {
		b := make([]byte, r.Intn(80))
		for i := range b {
			// printable ASCII without the delimiters
			c := byte(0x20 + r.Intn(0x5f))
			for c == '$' || c == '*' {
				c = byte(0x20 + r.Intn(0x5f))
			}
			b[i] = c
		}
		payload := string(b)

		var want byte
		for i := 0; i < len(payload); i++ {
			want ^= payload[i]
		}
		got := Checksum("$" + payload + "*")
		require.Len(t, got, 2)
		require.Equal(t, strings.ToUpper(got), got)
		require.Equal(t, gonmea.Checksum(payload), got)

		var parsed byte
		for i := 0; i < 2; i++ {
			parsed <<= 4
			c := got[i]
			if c >= 'A' {
				parsed |= c - 'A' + 10
			} else {
				parsed |= c - '0'
			}
		}
		require.Equal(t, want, parsed)
	}
}

func TestGeneratedSentencesCarryValidChecksum(t *testing.T) {
	snap := testSnapshot(5)
	for _, s := range []string{GGA(snap), GLL(snap), RMC(snap), GSA(snap)} {
		line := trimCRLF(t, s)
		star := strings.LastIndexByte(line, '*')
		require.Greater(t, star, 0)
		require.Equal(t, Checksum(line[:star]), line[star+1:])
	}
}

func TestCoordinateFields(t *testing.T) {
	d, m, h := LatitudeFields(34.5)
	require.Equal(t, []string{"34", "30.0000", "N"}, []string{d, m, h})

	d, m, h = LongitudeFields(-118.25)
	require.Equal(t, []string{"118", "15.0000", "W"}, []string{d, m, h})

	d, m, h = LatitudeFields(-5.01)
	require.Equal(t, []string{"05", "00.6000", "S"}, []string{d, m, h})

	d, m, h = LongitudeFields(7.0)
	require.Equal(t, []string{"007", "00.0000", "E"}, []string{d, m, h})

	// rounds up to a full degree
	d, m, h = LatitudeFields(12.9999999)
	require.Equal(t, []string{"13", "00.0000", "N"}, []string{d, m, h})
}

func TestFixType(t *testing.T) {
	for i, want := range []string{"0", "2", "2", "0", "3"} {
		require.Equal(t, want, FixType(i), "sats=%d", i)
	}
	require.Equal(t, "3", FixType(12))
}

func TestTimeFieldIsUTC(t *testing.T) {
	ts := time.Date(2024, 7, 4, 10, 11, 12, 345_000_000, time.FixedZone("PDT", -7*3600))
	require.Equal(t, "171112.34", TimeField(ts))
	require.Equal(t, "040724", DateField(ts))

	ts = time.Date(2024, 12, 31, 20, 0, 0, 0, time.FixedZone("X", -5*3600))
	require.Equal(t, "010125", DateField(ts))
}

func TestGGA(t *testing.T) {
	snap := testSnapshot(5)
	line := trimCRLF(t, GGA(snap))
	require.True(t, strings.HasPrefix(line, "$GPGGA,171112.34,3430.0000,N,11815.0000,W,1,05,,123.5,M,,M,,*"), line)

	s, err := gonmea.Parse(line)
	require.NoError(t, err)
	gga, ok := s.(gonmea.GGA)
	require.True(t, ok)
	require.InDelta(t, 34.5, gga.Latitude, 1e-9)
	require.InDelta(t, -118.25, gga.Longitude, 1e-9)
	require.Equal(t, gonmea.GPS, gga.FixQuality)
	require.Equal(t, int64(5), gga.NumSatellites)
	require.InDelta(t, 123.5, gga.Altitude, 1e-9)
}

func TestGLL(t *testing.T) {
	line := trimCRLF(t, GLL(testSnapshot(0)))
	require.True(t, strings.HasPrefix(line, "$GPGLL,3430.0000,N,11815.0000,W,171112.34,A*"), line)

	s, err := gonmea.Parse(line)
	require.NoError(t, err)
	gll := s.(gonmea.GLL)
	require.Equal(t, gonmea.ValidGLL, gll.Validity)
	require.Equal(t, 17, gll.Time.Hour)
	require.Equal(t, 11, gll.Time.Minute)
}

func TestRMC(t *testing.T) {
	line := trimCRLF(t, RMC(testSnapshot(0)))
	require.True(t, strings.HasPrefix(line, "$GPRMC,171112.34,A,3430.0000,N,11815.0000,W,36.0,,040724,,*"), line)

	s, err := gonmea.Parse(line)
	require.NoError(t, err)
	rmc := s.(gonmea.RMC)
	require.Equal(t, gonmea.ValidRMC, rmc.Validity)
	require.InDelta(t, 36.0, rmc.Speed, 1e-9)
	require.Equal(t, 4, rmc.Date.DD)
	require.Equal(t, 7, rmc.Date.MM)
	require.Equal(t, 24, rmc.Date.YY)
}

func TestGSA(t *testing.T) {
	line := trimCRLF(t, GSA(testSnapshot(4)))
	require.True(t, strings.HasPrefix(line, "$GPGSA,A,3,3,4,5,6,,,,,,,,,1.8,0.9,1.5*"), line)

	s, err := gonmea.Parse(line)
	require.NoError(t, err)
	gsa := s.(gonmea.GSA)
	require.Equal(t, gonmea.Fix3D, gsa.FixType)
	require.Equal(t, []string{"3", "4", "5", "6"}, gsa.SV)
	require.InDelta(t, 1.8, gsa.PDOP, 1e-9)

	// PRN slots are capped at twelve
	line = trimCRLF(t, GSA(testSnapshot(20)))
	require.Equal(t, 17, strings.Count(line, ","))
}

func TestNoFixYieldsEmpty(t *testing.T) {
	var snap fix.Snapshot
	require.Empty(t, GGA(snap))
	require.Empty(t, GLL(snap))
	require.Empty(t, RMC(snap))
	require.Empty(t, GSA(snap))
	require.Empty(t, Raw(snap))
}

func TestRawOrder(t *testing.T) {
	raw := Raw(testSnapshot(4))
	lines := strings.Split(strings.TrimSuffix(raw, "\r\n"), "\r\n")
	require.Len(t, lines, 4)
	for i, prefix := range []string{"$GPGSA", "$GPGGA", "$GPGLL", "$GPRMC"} {
		require.True(t, strings.HasPrefix(lines[i], prefix))
	}
}
