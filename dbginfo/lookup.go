package dbginfo

import (
	"path/filepath"
	"strings"

	"github.com/aclements/nrgprof/errtag"
)

// LookupErrorKind distinguishes the categorized outcomes a symbol or
// line query can report: not found, or one of four ambiguity flavors.
// Grounded on original_source/src/dbg/utility_funcs.cpp's util_errc
// enum.
type LookupErrorKind uint8

const (
	NotFound LookupErrorKind = iota
	Ambiguous
	AmbiguousWeak
	AmbiguousStatic
	AmbiguousSuffix
)

func (k LookupErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Ambiguous:
		return "ambiguous"
	case AmbiguousWeak:
		return "ambiguous (weak symbol)"
	case AmbiguousStatic:
		return "ambiguous (static symbol)"
	case AmbiguousSuffix:
		return "ambiguous (suffixed clone)"
	default:
		return "unknown"
	}
}

// LookupError is the concrete error every dbginfo query returns on
// failure; Kind lets callers tell "not found" from the various
// ambiguity reasons apart via errors.As.
type LookupError struct {
	Kind LookupErrorKind
	What string
}

func (e *LookupError) Error() string { return e.What + ": " + e.Kind.String() }

func lookupErr(kind LookupErrorKind, what string) error {
	return errtag.Wrap(errtag.Lookup, what, &LookupError{Kind: kind, What: what})
}

// isSubPath reports whether sub is an incomplete path of path — equal
// to it, or a contiguous subsequence of its path elements — grounded
// on utility_funcs.cpp:is_sub_path.
func isSubPath(sub, path string) bool {
	if sub == "" {
		return false
	}
	if sub == path {
		return true
	}
	subElems := strings.Split(strings.Trim(filepath.ToSlash(sub), "/"), "/")
	pathElems := strings.Split(strings.Trim(filepath.ToSlash(path), "/"), "/")
	for i := 0; i+len(subElems) <= len(pathElems); i++ {
		match := true
		for j, e := range subElems {
			if pathElems[i+j] != e {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// FindCompileUnitByPath finds the CU whose canonical path contains sub
// as a sub-path. Returns an Ambiguous lookup error if more than one CU
// matches.
func (idx *Index) FindCompileUnitByPath(sub string) (*CompileUnit, error) {
	var found *CompileUnit
	for _, cu := range idx.CUs {
		if !isSubPath(sub, cu.Path) {
			continue
		}
		if found != nil {
			return nil, lookupErr(Ambiguous, "compilation unit")
		}
		found = cu
	}
	if found == nil {
		return nil, lookupErr(NotFound, "compilation unit")
	}
	return found, nil
}

// FindCompileUnitByAddr finds the CU whose PC ranges contain addr.
func (idx *Index) FindCompileUnitByAddr(addr uint64) (*CompileUnit, error) {
	for _, cu := range idx.CUs {
		for _, rng := range cu.Ranges {
			if rng.contains(addr) {
				return cu, nil
			}
		}
	}
	return nil, lookupErr(NotFound, "compilation unit")
}

// FindCompileUnitBySymbol finds the CU whose PC ranges contain sym's
// address.
func (idx *Index) FindCompileUnitBySymbol(sym *FunctionSymbol) (*CompileUnit, error) {
	return idx.FindCompileUnitByAddr(sym.Address)
}

// FindLines returns the contiguous span of cu's line-table entries
// whose file matches (cu.Path if file is empty) and whose
// line/column satisfy the exact-or-greater flags, grounded on
// utility_funcs.cpp:find_lines. Lines must already be address-sorted
// (loadLineTable does this), matching the "file table is scanned in
// address order" assumption of the original.
func FindLines(cu *CompileUnit, file string, line uint32, exactLine bool, col uint32, exactCol bool) ([]SourceLine, error) {
	if line == 0 && col != 0 {
		return nil, errtag.New(errtag.Lookup, "dbginfo: column specified without a line")
	}
	effectiveFile := file
	if effectiveFile == "" {
		effectiveFile = cu.Path
	}

	lineMatch := func(l SourceLine, want uint32, exact bool) bool {
		if want == 0 {
			return true
		}
		if exact {
			return uint32(l.Line) == want
		}
		return uint32(l.Line) >= want
	}
	colMatch := func(l SourceLine, want uint32, exact bool) bool {
		if want == 0 {
			return true
		}
		if exact {
			return uint32(l.Column) == want
		}
		return uint32(l.Column) >= want
	}
	fileMatch := func(l SourceLine) bool {
		return l.File != nil && l.File.Name == effectiveFile
	}

	fileFound := false
	start := -1
	for i, l := range cu.Lines {
		if !fileMatch(l) {
			continue
		}
		fileFound = true
		if lineMatch(l, line, exactLine) {
			start = i
			break
		}
	}
	if start < 0 {
		if !fileFound {
			return nil, lookupErr(NotFound, "file")
		}
		return nil, lookupErr(NotFound, "line")
	}

	// Re-anchor on the exact line number found, then require the
	// column to match (possibly resetting the wanted column to 0 if
	// the matched line advanced past the requested one).
	wantLine := uint32(cu.Lines[start].Line)
	wantCol := col
	if wantLine > line && !exactCol {
		wantCol = 0
	}
	anchored := -1
	for i := start; i < len(cu.Lines); i++ {
		l := cu.Lines[i]
		if !fileMatch(l) || !lineMatch(l, wantLine, true) {
			continue
		}
		if colMatch(l, wantCol, exactCol) {
			anchored = i
			break
		}
	}
	if anchored < 0 {
		return nil, lookupErr(NotFound, "column")
	}

	end := anchored + 1
	for end < len(cu.Lines) {
		l := cu.Lines[end]
		if !fileMatch(l) || !lineMatch(l, uint32(cu.Lines[anchored].Line), true) {
			break
		}
		end++
	}
	for end < len(cu.Lines) {
		l := cu.Lines[end]
		if !fileMatch(l) || !lineMatch(l, uint32(cu.Lines[anchored].Line), true) || !colMatch(l, uint32(cu.Lines[anchored].Column), true) {
			break
		}
		end++
	}
	return cu.Lines[anchored:end], nil
}

// LowestAddressLine picks the lowest-address entry from lines,
// optionally restricted to a statement start, grounded on
// utility_funcs.cpp:lowest_address_line.
func LowestAddressLine(lines []SourceLine, requireStmt bool) (*SourceLine, error) {
	if !requireStmt {
		if len(lines) == 0 {
			return nil, lookupErr(NotFound, "line")
		}
		return &lines[0], nil
	}
	for i := range lines {
		if lines[i].IsStmt {
			return &lines[i], nil
		}
	}
	return nil, lookupErr(NotFound, "line")
}

// HighestAddressLine picks the highest-address entry from lines,
// optionally restricted to a statement start, grounded on
// utility_funcs.cpp:highest_address_line.
func HighestAddressLine(lines []SourceLine, requireStmt bool) (*SourceLine, error) {
	if !requireStmt {
		if len(lines) == 0 {
			return nil, lookupErr(NotFound, "line")
		}
		return &lines[len(lines)-1], nil
	}
	var found *SourceLine
	for i := range lines {
		if lines[i].IsStmt {
			found = &lines[i]
		}
	}
	if found == nil {
		return nil, lookupErr(NotFound, "line")
	}
	return found, nil
}

// FindLine finds the lowest-address line in cu matching (file, line,
// column), treating both as "or greater", grounded on
// utility_funcs.cpp:find_line.
func FindLine(cu *CompileUnit, file string, line, col uint32) (*SourceLine, error) {
	lines, err := FindLines(cu, file, line, false, col, false)
	if err != nil {
		return nil, err
	}
	return LowestAddressLine(lines, false)
}

// FindFunctionSymbol finds the function symbol whose demangled name
// equals name exactly, grounded on
// utility_funcs.cpp:find_function_symbol_exact. Symbols are already
// sorted by (Name, Address); this still scans linearly since sorting
// is by mangled name, not demangled name.
func (idx *Index) FindFunctionSymbol(name string) (*FunctionSymbol, error) {
	return findSymbolExact(idx.Symbols, name)
}

func findSymbolExact(syms []FunctionSymbol, name string) (*FunctionSymbol, error) {
	match := func(s *FunctionSymbol) bool {
		return removeSpaces(demangleName(s.Name)) == removeSpaces(name)
	}
	var found *FunctionSymbol
	hasStatic, hasWeak, ambiguous := false, false, false
	for i := range syms {
		if !match(&syms[i]) {
			continue
		}
		if found == nil {
			found = &syms[i]
			hasStatic = syms[i].Binding == BindLocal
			hasWeak = syms[i].Binding == BindWeak
			continue
		}
		ambiguous = true
		hasStatic = hasStatic || syms[i].Binding == BindLocal
		hasWeak = hasWeak || syms[i].Binding == BindWeak
	}
	if found == nil {
		return nil, lookupErr(NotFound, "function symbol")
	}
	if ambiguous {
		switch {
		case hasWeak:
			return nil, lookupErr(AmbiguousWeak, "function symbol")
		case hasStatic:
			return nil, lookupErr(AmbiguousStatic, "function symbol")
		default:
			return nil, lookupErr(Ambiguous, "function symbol")
		}
	}
	return found, nil
}

// FindFunctionSymbolMatched finds a function symbol by prefix-matching
// its demangled name against name, optionally preferring a match with
// no dot-suffix (skipping GCC/Clang clones such as "foo.cold"),
// grounded on utility_funcs.cpp:find_function_symbol_matched.
func (idx *Index) FindFunctionSymbolMatched(name string, noSuffix bool) (*FunctionSymbol, error) {
	var matches []*FunctionSymbol
	for i := range idx.Symbols {
		if isPrefixDemangled(name, idx.Symbols[i].Name) {
			matches = append(matches, &idx.Symbols[i])
		}
	}
	if len(matches) == 0 {
		return nil, lookupErr(NotFound, "function symbol")
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	// Prefer an exact demangled match among the prefix matches.
	names := make([]FunctionSymbol, len(matches))
	for i, m := range matches {
		names[i] = *m
	}
	exact, err := findSymbolExact(names, name)
	if err == nil {
		return exact, nil
	}
	if le, ok := asLookupError(err); !ok || le.Kind != NotFound {
		return nil, err
	}

	if !noSuffix {
		return nil, lookupErr(AmbiguousSuffix, "function symbol")
	}

	var noSuffixMatches []*FunctionSymbol
	for _, m := range matches {
		if !hasDotSuffix(m.Name) {
			noSuffixMatches = append(noSuffixMatches, m)
		}
	}
	if len(noSuffixMatches) == 0 {
		return nil, lookupErr(AmbiguousSuffix, "function symbol")
	}
	if len(noSuffixMatches) > 1 {
		return nil, lookupErr(Ambiguous, "function symbol")
	}
	return noSuffixMatches[0], nil
}

func asLookupError(err error) (*LookupError, bool) {
	var tagged *errtag.Error
	if te, ok := err.(*errtag.Error); ok {
		tagged = te
	} else {
		return nil, false
	}
	le, ok := tagged.Err.(*LookupError)
	return le, ok
}

// FindFunctionSymbolByAddr finds the function symbol at exactly addr.
func (idx *Index) FindFunctionSymbolByAddr(addr uint64) (*FunctionSymbol, error) {
	for i := range idx.Symbols {
		if idx.Symbols[i].Address == addr {
			return &idx.Symbols[i], nil
		}
	}
	return nil, lookupErr(NotFound, "function symbol")
}

// FindFunctionByAddr finds the Function DIE whose concrete range
// contains addr, searching every CU. Grounded on
// utility_funcs.cpp:find_function(object_info, function_symbol),
// generalized from symbol-address lookup to any address since
// dbginfo's primary caller (trap resolution) already has a raw
// address, not always a symbol.
func (idx *Index) FindFunctionByAddr(addr uint64) (*Function, *CompileUnit, error) {
	for _, cu := range idx.CUs {
		for _, fn := range cu.Funcs {
			if fn.Concrete == nil {
				continue
			}
			for _, r := range fn.Concrete.Ranges {
				if r.contains(addr) {
					return fn, cu, nil
				}
			}
		}
	}
	return nil, nil, lookupErr(NotFound, "function")
}

// FindFunctionByName finds a function by its demangled name, searching
// cu if non-nil or every CU otherwise. It first tries a function
// symbol lookup (which additionally applies the suffix/weak/static
// ambiguity rules) and falls back to a DWARF-only DIE-name search for
// pure inline functions that have no symbol-table entry, grounded on
// utility_funcs.cpp:find_function(object_info, name, exact_name).
func (idx *Index) FindFunctionByName(cu *CompileUnit, name string, exact bool) (*Function, *FunctionSymbol, error) {
	var sym *FunctionSymbol
	var symErr error
	if exact {
		sym, symErr = idx.FindFunctionSymbol(name)
	} else {
		sym, symErr = idx.FindFunctionSymbolMatched(name, true)
	}
	if symErr == nil {
		fn, fcu, err := idx.FindFunctionByAddr(sym.Address)
		if err != nil {
			return nil, nil, err
		}
		if cu != nil && fcu != cu {
			return nil, nil, lookupErr(NotFound, "function")
		}
		return fn, sym, nil
	}
	le, ok := asLookupError(symErr)
	if !ok || le.Kind != NotFound {
		return nil, nil, symErr
	}

	cus := idx.CUs
	if cu != nil {
		cus = []*CompileUnit{cu}
	}
	var found *Function
	for _, c := range cus {
		fn, err := findFunctionInCUByName(c, name, exact)
		if err == nil {
			if found != nil {
				return nil, nil, lookupErr(Ambiguous, "function")
			}
			found = fn
			continue
		}
		if le, ok := asLookupError(err); !ok || le.Kind != NotFound {
			return nil, nil, err
		}
	}
	if found == nil {
		return nil, nil, lookupErr(NotFound, "function")
	}
	return found, nil, nil
}

// findFunctionInCUByName does a DWARF-only name search within one CU,
// matching static functions by DIE name and external functions by
// demangled linkage name, grounded on
// utility_funcs.cpp:find_function(compilation_unit, name, exact_name).
func findFunctionInCUByName(cu *CompileUnit, name string, exact bool) (*Function, error) {
	var found *Function
	for _, fn := range cu.Funcs {
		var full string
		if fn.IsStatic() {
			full = fn.DIEName
		} else {
			full = demangleName(fn.LinkageName)
		}
		if exact {
			if removeSpaces(full) == removeSpaces(name) {
				return fn, nil
			}
			continue
		}
		if !isPrefixDemangled(name, full) {
			continue
		}
		if removeSpaces(full) == removeSpaces(name) {
			return fn, nil
		}
		if found != nil {
			return nil, lookupErr(Ambiguous, "function")
		}
		found = fn
	}
	if found != nil {
		return found, nil
	}
	return nil, lookupErr(NotFound, "function")
}

// FindFunctionsInFile returns every function declared in file within
// cu, in declaration order, grounded on
// utility_funcs.cpp:find_functions.
func FindFunctionsInFile(cu *CompileUnit, file string) ([]*Function, error) {
	var out []*Function
	for _, fn := range cu.Funcs {
		if fn.HasDecl && fn.Decl.File == file {
			out = append(out, fn)
		}
	}
	if len(out) == 0 {
		return nil, lookupErr(NotFound, "file")
	}
	return out, nil
}

// FindFunctionByDecl finds the function declared at exactly
// (file, line[, column]) within cu, grounded on
// utility_funcs.cpp:find_function(compilation_unit, file, lineno,
// colno).
func FindFunctionByDecl(cu *CompileUnit, file string, line, col uint32) (*Function, error) {
	var found *Function
	declLocFound, fileFound, lineFound, colFound := false, false, false, false
	for _, fn := range cu.Funcs {
		if !fn.HasDecl {
			continue
		}
		declLocFound = true
		if fn.Decl.File != file {
			continue
		}
		fileFound = true
		if fn.Decl.Line != line {
			continue
		}
		lineFound = true
		if col != 0 && fn.Decl.Column != col {
			continue
		}
		colFound = true
		if found != nil {
			return nil, lookupErr(Ambiguous, "function")
		}
		found = fn
	}
	if found != nil {
		return found, nil
	}
	switch {
	case !declLocFound:
		return nil, lookupErr(NotFound, "declaration location")
	case !fileFound:
		return nil, lookupErr(NotFound, "file")
	case !lineFound:
		return nil, lookupErr(NotFound, "line")
	case !colFound:
		return nil, lookupErr(NotFound, "column")
	}
	return nil, lookupErr(NotFound, "function")
}
