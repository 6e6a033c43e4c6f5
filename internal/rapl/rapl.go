// Package rapl reads Intel RAPL energy counters through the powercap
// sysfs interface on x86_64, grounded on the sysfs scanning shown in
// the pack's kepler and ceems RAPL collectors and on the
// wraparound/domain semantics of
// original_source/nrg/src/x86_64/reader_cpu.cpp.
package rapl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

const (
	raplRoot   = "/sys/class/powercap/intel-rapl"
	nameFile   = "name"
	energyFile = "energy_uj"
	maxFile    = "max_energy_range_uj"

	cpuTopologyGlob = "/sys/devices/system/cpu/cpu[0-9]*/topology/physical_package_id"

	// maxSockets bounds how many distinct physical_package_id values
	// New will tolerate, matching original_source/nrg/include/nrg/
	// constants.hpp's max_sockets.
	maxSockets = 8
)

var packageDirRE = regexp.MustCompile(`^intel-rapl:(\d+)$`)

// countSockets enumerates /sys/devices/system/cpu/cpu<N>/topology/
// physical_package_id to determine how many distinct CPU sockets the
// host has, independent of which powercap zones happen to exist. It
// fails if the host reports more sockets than maxSockets.
func countSockets() (int, error) {
	files, err := filepath.Glob(cpuTopologyGlob)
	if err != nil {
		return 0, errtag.Wrapf(errtag.Setup, err, "rapl: globbing cpu topology")
	}
	packages := make(map[int]struct{})
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return 0, errtag.Wrapf(errtag.Setup, err, "rapl: reading %s", f)
		}
		pkg, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			return 0, errtag.Wrapf(errtag.Format, err, "rapl: parsing %s", f)
		}
		packages[pkg] = struct{}{}
	}
	if len(packages) == 0 {
		return 0, errtag.New(errtag.Setup, "rapl: no sockets found in cpu topology")
	}
	if len(packages) > maxSockets {
		return 0, errtag.New(errtag.Setup, fmt.Sprintf("rapl: too many sockets: maximum of %d, found %d", maxSockets, len(packages)))
	}
	return len(packages), nil
}

// domain is one powercap leaf: a package itself, or one of its
// subdomains (core/uncore/dram).
type domain struct {
	loc    energy.Location
	socket int

	energyFD *os.File
	max      float64 // wraparound modulus, in raw sysfs units (uJ)
	prev     float64
	carry    float64
	primed   bool
}

// Reader implements energy.Reader over RAPL powercap files.
type Reader struct {
	domains []*domain
	// bySocket maps socket -> Location -> index into domains; a
	// location the reader does not cover has no entry.
	bySocket map[int]map[energy.Location]int
}

// New scans the powercap tree and opens one descriptor per selected
// domain. It fails with a Setup error if no domain intersects the
// requested masks, or if the requested sockMask names a socket the
// host's CPU topology doesn't have.
func New(locMask energy.LocationMask, sockMask energy.SocketMask) (*Reader, error) {
	if locMask == 0 || sockMask == 0 {
		return nil, energy.ErrEmptyMask
	}

	nsockets, err := countSockets()
	if err != nil {
		return nil, err
	}
	for s := nsockets; s < 64; s++ {
		if sockMask.Has(s) {
			return nil, errtag.New(errtag.Setup, fmt.Sprintf("rapl: requested socket %d but host topology reports only %d sockets", s, nsockets))
		}
	}

	entries, err := os.ReadDir(raplRoot)
	if err != nil {
		return nil, errtag.Wrapf(errtag.Setup, err, "rapl: reading %s", raplRoot)
	}

	r := &Reader{bySocket: make(map[int]map[energy.Location]int)}
	for _, e := range entries {
		m := packageDirRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		socket, _ := strconv.Atoi(m[1])
		if !sockMask.Has(socket) {
			continue
		}
		pkgDir := filepath.Join(raplRoot, e.Name())
		if err := r.scanPackage(pkgDir, socket, locMask); err != nil {
			return nil, err
		}
	}

	if len(r.domains) == 0 {
		return nil, errtag.New(errtag.Setup, "rapl: no domains matched the requested masks")
	}
	sort.Slice(r.domains, func(i, j int) bool {
		if r.domains[i].socket != r.domains[j].socket {
			return r.domains[i].socket < r.domains[j].socket
		}
		return r.domains[i].loc < r.domains[j].loc
	})
	// Sorting moved the domains, so re-point bySocket at their new slots.
	for i, d := range r.domains {
		r.bySocket[d.socket][d.loc] = i
	}
	return r, nil
}

func (r *Reader) scanPackage(pkgDir string, socket int, locMask energy.LocationMask) error {
	if err := r.addDomain(pkgDir, socket, locMask); err != nil {
		return err
	}
	subs, err := os.ReadDir(pkgDir)
	if err != nil {
		return errtag.Wrapf(errtag.Setup, err, "rapl: reading %s", pkgDir)
	}
	for _, s := range subs {
		if !strings.HasPrefix(s.Name(), "intel-rapl:") || !strings.Contains(s.Name(), ":") {
			continue
		}
		// Subdomains are named intel-rapl:<skt>:<sub>.
		if !strings.HasPrefix(s.Name(), fmt.Sprintf("intel-rapl:%d:", socket)) {
			continue
		}
		if err := r.addDomain(filepath.Join(pkgDir, s.Name()), socket, locMask); err != nil {
			return err
		}
	}
	return nil
}

func domainFromName(name string) (energy.Location, bool) {
	switch {
	case name == "core":
		return energy.LocCores, true
	case name == "uncore":
		return energy.LocUncore, true
	case name == "dram":
		return energy.LocDRAM, true
	case strings.HasPrefix(name, "package-"):
		return energy.LocPackage, true
	default:
		return 0, false
	}
}

func (r *Reader) addDomain(dir string, socket int, locMask energy.LocationMask) error {
	nameBytes, err := os.ReadFile(filepath.Join(dir, nameFile))
	if err != nil {
		return errtag.Wrapf(errtag.Setup, err, "rapl: reading %s", filepath.Join(dir, nameFile))
	}
	name := strings.TrimSpace(string(nameBytes))
	loc, ok := domainFromName(name)
	if !ok {
		return errtag.New(errtag.Format, fmt.Sprintf("rapl: unrecognized domain name %q in %s", name, dir))
	}
	if !locMask.Has(loc) {
		return nil
	}

	maxBytes, err := os.ReadFile(filepath.Join(dir, maxFile))
	if err != nil {
		return errtag.Wrapf(errtag.Setup, err, "rapl: reading %s", filepath.Join(dir, maxFile))
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(string(maxBytes)), 64)
	if err != nil {
		return errtag.Wrapf(errtag.Format, err, "rapl: parsing %s", filepath.Join(dir, maxFile))
	}

	fd, err := os.Open(filepath.Join(dir, energyFile))
	if err != nil {
		return errtag.Wrapf(errtag.Setup, err, "rapl: opening %s", filepath.Join(dir, energyFile))
	}

	d := &domain{loc: loc, socket: socket, energyFD: fd, max: maxVal}
	idx := len(r.domains)
	r.domains = append(r.domains, d)
	if r.bySocket[socket] == nil {
		r.bySocket[socket] = make(map[energy.Location]int)
	}
	r.bySocket[socket][loc] = idx
	return nil
}

func (r *Reader) Width() int { return len(r.domains) }

// Read takes a timestamp then pread(2)s every domain's energy_uj file,
// applying the wraparound fix-up: if the new raw counter is smaller
// than the last one observed, the counter rolled over, so the domain's
// max value is folded into a running carry added to every reading.
func (r *Reader) Read() (energy.Reading, error) {
	out := energy.NewReading(len(r.domains))
	out.At = time.Now()
	buf := make([]byte, 64)
	for i, d := range r.domains {
		n, err := d.energyFD.ReadAt(buf, 0)
		if err != nil && n == 0 {
			return energy.Reading{}, errtag.Wrapf(errtag.Read, err, "rapl: reading socket %d %s", d.socket, d.loc)
		}
		raw, err := strconv.ParseFloat(strings.TrimSpace(string(buf[:n])), 64)
		if err != nil {
			return energy.Reading{}, errtag.Wrapf(errtag.Read, err, "rapl: parsing socket %d %s", d.socket, d.loc)
		}
		if d.primed && raw < d.prev {
			d.carry += d.max
		}
		d.prev = raw
		d.primed = true
		out.Values[i] = raw + d.carry
	}
	return out, nil
}

// ValueAt reports the microjoule energy counter for loc on any socket
// it was configured on; callers wanting a specific socket should use
// ValueAtSocket.
func (r *Reader) ValueAt(rd energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	for socket := range r.bySocket {
		if q, ok := r.ValueAtSocket(rd, socket, loc); ok {
			return q, ok
		}
	}
	return energy.Quantity{}, false
}

// ValueAtSocket reports the microjoule energy counter for (socket, loc).
func (r *Reader) ValueAtSocket(rd energy.Reading, socket int, loc energy.Location) (energy.Quantity, bool) {
	doms, ok := r.bySocket[socket]
	if !ok {
		return energy.Quantity{}, false
	}
	idx, ok := doms[loc]
	if !ok {
		return energy.Quantity{}, false
	}
	return energy.Quantity{Value: rd.Values[idx], Scale: energy.Microjoules, Kind: energy.KindEnergy}, true
}

func (r *Reader) Close() error {
	var first error
	for _, d := range r.domains {
		if err := d.energyFD.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
