package dbginfo

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// demangleName demangles an Itanium or Rust mangled symbol name,
// returning the input unchanged if it is not a recognized mangling.
// Demangling is delegated to github.com/ianlancetaylor/demangle rather
// than reimplemented.
func demangleName(name string) string {
	return demangle.Filter(name)
}

// removeSpaces strips all whitespace, matching
// original_source/src/dbg/utility_funcs.cpp:remove_spaces — demangled
// names are compared after removing whitespace so that formatting
// differences between demanglers (e.g. "foo(int)" vs "foo (int)")
// don't cause spurious ambiguity or non-matches.
func removeSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isEqualDemangled reports whether mangled's demangled form equals
// name once both have whitespace removed, grounded on
// utility_funcs.cpp:is_equal.
func isEqualDemangled(name, mangled string) bool {
	return removeSpaces(demangleName(mangled)) == removeSpaces(name)
}

// isPrefixDemangled reports whether toMatch is a prefix of mangled's
// demangled form, ignoring whitespace — grounded on
// utility_funcs.cpp:is_match_demangled. This is how suffix-clones like
// "foo.cold" match a plain "foo" lookup: the clone's demangled name is
// "foo" with a dot-suffix appended to the underlying symbol name,
// which still starts with the exact demangled text.
func isPrefixDemangled(toMatch, mangled string) bool {
	name := removeSpaces(demangleName(mangled))
	want := removeSpaces(toMatch)
	return strings.HasPrefix(name, want)
}

// hasDotSuffix reports whether a symbol name carries a GCC/Clang
// clone suffix such as ".cold" or ".part.0", grounded on
// utility_funcs.cpp:has_suffix.
func hasDotSuffix(name string) bool {
	return strings.IndexByte(name, '.') >= 0
}
