// Package occ reads IBM POWER9 On-Chip-Controller in-band sensors,
// grounded entirely on original_source/nrg/src/ppc64/reader_cpu.cpp
// and reader_cpu.hpp since no Go example in the retrieved pack touches
// OCC; field offsets, GSIDs, and the ping/pong tie-break rule are taken
// from that source.
package occ

import (
	"math"
	"os"
	"time"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

const (
	sensorsFile = "/sys/firmware/opal/exports/occ_inband_sensors"

	occBlockSize  = 150 * 1024
	maxOCCs       = 8
	headerSize    = 24
	namesOffset   = 0x400
	pingOffset    = 0xDC00
	pongOffset    = 0x18C00
	bufferSize    = 40 * 1024
	bufferPad     = 8 // valid byte + 7 reserved
	namesEntrySz  = 48
	headerVersion = 1
)

// GSIDs from the OCC P9 firmware interface, mapped to the energy
// location each one reports.
const (
	gsidPWRSYS  = 20
	gsidPWRGPU  = 24
	gsidPWRPROC = 48
	gsidPWRMEM  = 49
	gsidPWRVDD  = 56
	gsidPWRVDN  = 57
)

func locationForGSID(gsid uint16) (energy.Location, bool) {
	switch gsid {
	case gsidPWRSYS:
		return energy.LocSystem, true
	case gsidPWRGPU:
		return energy.LocGPURail, true
	case gsidPWRPROC:
		return energy.LocPackage, true
	case gsidPWRMEM:
		return energy.LocDRAM, true
	case gsidPWRVDD:
		return energy.LocCores, true
	case gsidPWRVDN:
		return energy.LocUncore, true
	default:
		return 0, false
	}
}

// toDouble decodes the firmware's mantissa/exponent encoding:
// (mantissa << 8) | int8(exponent) => mantissa * 10^exponent.
func toDouble(raw uint32) float64 {
	mantissa := raw >> 8
	exponent := int8(raw & 0xff)
	return float64(mantissa) * math.Pow(10, float64(exponent))
}

type sensorEntry struct {
	gsid          uint16
	scalingFactor float64
	readingOffset uint32
	structVersion uint8
	units         string
	loc           energy.Location
}

type occUnit struct {
	index   int
	entries []sensorEntry
}

// Reader implements energy.Reader over the OCC binary sysfs file.
type Reader struct {
	f     *os.File
	units []occUnit
	// index maps Location -> (unit index, entry index within that unit)
	byLoc map[energy.Location][2]int
}

// New opens the OCC sysfs file, parses the header and sensor-name
// table for each populated OCC segment, and selects the sensors named
// in locMask.
func New(locMask energy.LocationMask) (*Reader, error) {
	return newFromPath(sensorsFile, locMask)
}

// newFromPath is New's implementation parameterized over the sysfs
// path, so tests can point it at a synthetic fixture file instead of
// the real occ_inband_sensors file.
func newFromPath(path string, locMask energy.LocationMask) (*Reader, error) {
	if locMask == 0 {
		return nil, energy.ErrEmptyMask
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errtag.Wrapf(errtag.Setup, err, "occ: opening %s", path)
	}

	r := &Reader{f: f, byLoc: make(map[energy.Location][2]int)}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errtag.Wrapf(errtag.Setup, err, "occ: stat %s", path)
	}
	n := int(info.Size() / occBlockSize)
	if n > maxOCCs {
		n = maxOCCs
	}

	for i := 0; i < n; i++ {
		u, err := r.parseUnit(i, locMask)
		if err != nil {
			f.Close()
			return nil, err
		}
		if len(u.entries) == 0 {
			continue
		}
		idx := len(r.units)
		r.units = append(r.units, u)
		for ei, e := range u.entries {
			if _, exists := r.byLoc[e.loc]; !exists {
				r.byLoc[e.loc] = [2]int{idx, ei}
			}
		}
	}
	if len(r.units) == 0 {
		f.Close()
		return nil, errtag.New(errtag.Setup, "occ: no sensors matched the requested mask")
	}
	return r, nil
}

func (r *Reader) parseUnit(occIdx int, locMask energy.LocationMask) (occUnit, error) {
	base := int64(occIdx) * occBlockSize
	hdrBuf := make([]byte, headerSize)
	if _, err := r.f.ReadAt(hdrBuf, base); err != nil {
		return occUnit{}, errtag.Wrapf(errtag.Read, err, "occ: reading header for OCC %d", occIdx)
	}
	d := bufDecoder{buf: hdrBuf}
	valid := d.u8()
	headerVer := d.u8()
	sensorCount := d.u16()
	d.u8()    // readings_version
	d.skip(3) // reserved
	namesOff := d.u32()
	d.u8()    // names_version
	d.u8()    // name_length
	d.skip(2) // reserved
	pingBufOff := d.u32()
	pongBufOff := d.u32()

	if valid == 0 {
		return occUnit{}, nil
	}
	if headerVer != headerVersion || namesOff != namesOffset ||
		pingBufOff != pingOffset || pongBufOff != pongOffset {
		return occUnit{}, errtag.New(errtag.Format, "occ: header block layout mismatch")
	}

	names := make([]byte, int(sensorCount)*namesEntrySz)
	if _, err := r.f.ReadAt(names, base+namesOffset); err != nil {
		return occUnit{}, errtag.Wrapf(errtag.Read, err, "occ: reading names table for OCC %d", occIdx)
	}

	u := occUnit{index: occIdx}
	nd := bufDecoder{buf: names}
	for i := 0; i < int(sensorCount); i++ {
		nd.cstr(16) // name
		units := nd.cstr(4)
		gsid := nd.u16()
		freqRaw := nd.u32()
		_ = freqRaw
		scaleRaw := nd.u32()
		nd.u16() // type
		nd.u16() // location
		structVersion := nd.u8()
		readingOffset := nd.u32()
		nd.u8() // specific_info1
		nd.skip(namesEntrySz - (16 + 4 + 2 + 4 + 4 + 2 + 2 + 1 + 4 + 1))

		loc, ok := locationForGSID(gsid)
		if !ok || !locMask.Has(loc) {
			continue
		}
		if structVersion != 1 {
			return occUnit{}, errtag.New(errtag.Format, "occ: unsupported sensor structure version")
		}
		u.entries = append(u.entries, sensorEntry{
			gsid:          gsid,
			scalingFactor: toDouble(scaleRaw),
			readingOffset: readingOffset,
			structVersion: structVersion,
			units:         units,
			loc:           loc,
		})
	}
	return u, nil
}

func (r *Reader) Width() int {
	n := 0
	for _, u := range r.units {
		n += len(u.entries)
	}
	return n
}

type sample struct {
	timestamp uint64
	value     uint16
}

// readRecord decodes a v1 sensor record (gsid, 64-bit timestamp,
// 16-bit sample) at the given byte offset within a 40 KiB buffer
// already read into memory.
func readRecord(buf []byte, offset uint32) sample {
	d := bufDecoder{buf: buf[offset:]}
	d.u16() // gsid (already known from the names table)
	ts := d.u64()
	val := d.u16()
	return sample{timestamp: ts, value: val}
}

func (r *Reader) Read() (energy.Reading, error) {
	now := time.Now()
	out := energy.NewReading(r.Width())
	out.At = now

	idx := 0
	for _, u := range r.units {
		base := int64(u.index) * occBlockSize
		pingValid, pingBuf, err := r.readBuffer(base + pingOffset)
		if err != nil {
			return energy.Reading{}, err
		}
		pongValid, pongBuf, err := r.readBuffer(base + pongOffset)
		if err != nil {
			return energy.Reading{}, err
		}
		if !pingValid && !pongValid {
			return energy.Reading{}, errtag.New(errtag.Read, "occ: both ping and pong invalid")
		}

		for _, e := range u.entries {
			var s sample
			switch {
			case pingValid && pongValid:
				ps := readRecord(pingBuf, e.readingOffset)
				qs := readRecord(pongBuf, e.readingOffset)
				// Equal timestamps favor pong, the later-written buffer in
				// the firmware's ping/pong double-buffering scheme.
				if ps.timestamp > qs.timestamp {
					s = ps
				} else {
					s = qs
				}
			case pongValid:
				s = readRecord(pongBuf, e.readingOffset)
			default:
				s = readRecord(pingBuf, e.readingOffset)
			}
			out.Values[idx] = float64(s.value) * e.scalingFactor
			idx++
		}
	}
	return out, nil
}

// readBuffer reads one 40 KiB ping/pong buffer, returning its valid
// flag and the full buffer. entry.readingOffset is relative to this
// full buffer (it already accounts for the 8-byte valid-byte-plus-pad
// header), not to some trimmed readings region, so the buffer is
// handed to readRecord unsliced.
func (r *Reader) readBuffer(off int64) (bool, []byte, error) {
	buf := make([]byte, bufferSize)
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return false, nil, errtag.Wrapf(errtag.Read, err, "occ: reading buffer at 0x%x", off)
	}
	valid := buf[0] != 0
	return valid, buf, nil
}

func (r *Reader) ValueAt(rd energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	pos, ok := r.byLoc[loc]
	if !ok {
		return energy.Quantity{}, false
	}
	idx := 0
	for ui, u := range r.units {
		if ui == pos[0] {
			idx += pos[1]
			break
		}
		idx += len(u.entries)
	}
	return energy.Quantity{Value: rd.Values[idx], Scale: energy.Ratio{Num: 1, Den: 1}, Kind: energy.KindPower}, true
}

func (r *Reader) Close() error {
	return r.f.Close()
}
