package occ

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/energy"
)

// fixtureSensor describes one names-table entry to bake into a
// synthetic OCC block.
type fixtureSensor struct {
	name          string
	units         string
	gsid          uint16
	scaleRaw      uint32
	readingOffset uint32
}

// fixtureRecord is one ping/pong sensor record to bake into a buffer.
type fixtureRecord struct {
	offset    uint32
	timestamp uint64
	value     uint16
}

func buildHeader(sensorCount uint16) []byte {
	buf := make([]byte, headerSize)
	buf[0] = 1 // valid
	buf[1] = headerVersion
	binary.BigEndian.PutUint16(buf[2:4], sensorCount)
	buf[4] = 1 // readings_version
	binary.BigEndian.PutUint32(buf[8:12], namesOffset)
	buf[12] = 1  // names_version
	buf[13] = 16 // name_length
	binary.BigEndian.PutUint32(buf[16:20], pingOffset)
	binary.BigEndian.PutUint32(buf[20:24], pongOffset)
	return buf
}

func putCStr(dst []byte, s string) {
	copy(dst, s)
}

func buildNamesEntry(s fixtureSensor) []byte {
	buf := make([]byte, namesEntrySz)
	putCStr(buf[0:16], s.name)
	putCStr(buf[16:20], s.units)
	binary.BigEndian.PutUint16(buf[20:22], s.gsid)
	binary.BigEndian.PutUint32(buf[22:26], 0) // freq, unused
	binary.BigEndian.PutUint32(buf[26:30], s.scaleRaw)
	binary.BigEndian.PutUint16(buf[30:32], 0) // type, unused
	binary.BigEndian.PutUint16(buf[32:34], 0) // location, unused
	buf[34] = 1                               // structVersion
	binary.BigEndian.PutUint32(buf[35:39], s.readingOffset)
	buf[39] = 0 // specific_info1
	return buf
}

func buildSensorBuffer(valid bool, records ...fixtureRecord) []byte {
	buf := make([]byte, bufferSize)
	if valid {
		buf[0] = 1
	}
	for _, r := range records {
		rec := buf[r.offset:]
		binary.BigEndian.PutUint16(rec[0:2], 0) // gsid, already known from names table
		binary.BigEndian.PutUint64(rec[2:10], r.timestamp)
		binary.BigEndian.PutUint16(rec[10:12], r.value)
	}
	return buf
}

// writeFixture assembles one occBlockSize OCC segment (header, names
// table, ping buffer, pong buffer) and writes it to a temp file,
// returning the file's path.
func writeFixture(t *testing.T, sensors []fixtureSensor, ping, pong []byte) string {
	t.Helper()
	block := make([]byte, occBlockSize)
	copy(block, buildHeader(uint16(len(sensors))))
	for i, s := range sensors {
		copy(block[namesOffset+i*namesEntrySz:], buildNamesEntry(s))
	}
	copy(block[pingOffset:], ping)
	copy(block[pongOffset:], pong)

	path := filepath.Join(t.TempDir(), "occ_inband_sensors")
	require.NoError(t, os.WriteFile(path, block, 0o644))
	return path
}

func TestReaderReadPongWinsTie(t *testing.T) {
	sensors := []fixtureSensor{
		{name: "pwrsys", units: "W", gsid: gsidPWRSYS, scaleRaw: 0x100, readingOffset: 0x40},
	}
	ping := buildSensorBuffer(true, fixtureRecord{offset: 0x40, timestamp: 1000, value: 5})
	pong := buildSensorBuffer(true, fixtureRecord{offset: 0x40, timestamp: 1000, value: 9})
	path := writeFixture(t, sensors, ping, pong)

	r, err := newFromPath(path, energy.LocationMask(1<<energy.LocSystem))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1, r.Width())

	reading, err := r.Read()
	require.NoError(t, err)
	require.Len(t, reading.Values, 1)
	assert.Equal(t, float64(9), reading.Values[0])
}

func TestReaderReadPingNewerWins(t *testing.T) {
	sensors := []fixtureSensor{
		{name: "pwrsys", units: "W", gsid: gsidPWRSYS, scaleRaw: 0x100, readingOffset: 0x40},
	}
	ping := buildSensorBuffer(true, fixtureRecord{offset: 0x40, timestamp: 2000, value: 7})
	pong := buildSensorBuffer(true, fixtureRecord{offset: 0x40, timestamp: 1000, value: 9})
	path := writeFixture(t, sensors, ping, pong)

	r, err := newFromPath(path, energy.LocationMask(1<<energy.LocSystem))
	require.NoError(t, err)
	defer r.Close()

	reading, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, float64(7), reading.Values[0])
}

func TestReaderReadPongOnlyValid(t *testing.T) {
	sensors := []fixtureSensor{
		{name: "pwrsys", units: "W", gsid: gsidPWRSYS, scaleRaw: 0x100, readingOffset: 0x40},
	}
	ping := buildSensorBuffer(false)
	pong := buildSensorBuffer(true, fixtureRecord{offset: 0x40, timestamp: 500, value: 3})
	path := writeFixture(t, sensors, ping, pong)

	r, err := newFromPath(path, energy.LocationMask(1<<energy.LocSystem))
	require.NoError(t, err)
	defer r.Close()

	reading, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, float64(3), reading.Values[0])
}

func TestReaderReadBothInvalidErrors(t *testing.T) {
	sensors := []fixtureSensor{
		{name: "pwrsys", units: "W", gsid: gsidPWRSYS, scaleRaw: 0x100, readingOffset: 0x40},
	}
	ping := buildSensorBuffer(false)
	pong := buildSensorBuffer(false)
	path := writeFixture(t, sensors, ping, pong)

	r, err := newFromPath(path, energy.LocationMask(1<<energy.LocSystem))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read()
	assert.Error(t, err)
}

func TestNewFiltersByLocationMask(t *testing.T) {
	sensors := []fixtureSensor{
		{name: "pwrsys", units: "W", gsid: gsidPWRSYS, scaleRaw: 0x100, readingOffset: 0x40},
		{name: "pwrproc", units: "W", gsid: gsidPWRPROC, scaleRaw: 0x100, readingOffset: 0x60},
	}
	ping := buildSensorBuffer(true,
		fixtureRecord{offset: 0x40, timestamp: 10, value: 1},
		fixtureRecord{offset: 0x60, timestamp: 10, value: 2},
	)
	pong := buildSensorBuffer(false)
	path := writeFixture(t, sensors, ping, pong)

	r, err := newFromPath(path, energy.LocationMask(1<<energy.LocPackage))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1, r.Width())
	reading, err := r.Read()
	require.NoError(t, err)
	q, ok := r.ValueAt(reading, energy.LocPackage)
	require.True(t, ok)
	assert.Equal(t, float64(2), q.Value)

	_, ok = r.ValueAt(reading, energy.LocSystem)
	assert.False(t, ok)
}

func TestNewEmptyMask(t *testing.T) {
	_, err := newFromPath("/nonexistent", 0)
	assert.ErrorIs(t, err, energy.ErrEmptyMask)
}
