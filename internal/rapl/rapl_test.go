package rapl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aclements/nrgprof/energy"
)

func TestDomainFromName(t *testing.T) {
	cases := []struct {
		name   string
		want   energy.Location
		wantOK bool
	}{
		{"core", energy.LocCores, true},
		{"uncore", energy.LocUncore, true},
		{"dram", energy.LocDRAM, true},
		{"package-0", energy.LocPackage, true},
		{"package-1", energy.LocPackage, true},
		{"psys", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		loc, ok := domainFromName(c.name)
		assert.Equal(t, c.wantOK, ok, "name=%q", c.name)
		if ok {
			assert.Equal(t, c.want, loc, "name=%q", c.name)
		}
	}
}

func TestPackageDirRegexp(t *testing.T) {
	assert.True(t, packageDirRE.MatchString("intel-rapl:0"))
	assert.True(t, packageDirRE.MatchString("intel-rapl:12"))
	assert.False(t, packageDirRE.MatchString("intel-rapl:0:1"))
	assert.False(t, packageDirRE.MatchString("intel-rapl"))
}
