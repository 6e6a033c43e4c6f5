package tracer

import "encoding/binary"

// hostEndian is little-endian on both GOARCHes this package builds
// for (amd64, ppc64le — see regs_ppc64le.go; big-endian ppc64 is not
// a supported target).
var hostEndian = binary.LittleEndian
