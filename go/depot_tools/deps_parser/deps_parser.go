// Package deps_parser parses DEPS files without shelling out to gclient.
//
// DEPS files are Python; we parse them with gpython and walk the AST for the
// two dicts we care about, 'vars' and 'deps'. Anything else in the file is
// ignored. Only the subset of Python expressions that real DEPS files use for
// dependency entries is understood: string literals, '+' concatenation,
// Var() calls, "{var}" format references and the dict forms for git and CIPD
// entries.
package deps_parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-python/gpython/ast"
	_ "github.com/go-python/gpython/builtin"
	"github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"
	"go.skia.org/bisection/go/skerr"
)

const (
	// DepsFileName is the name of the DEPS file.
	DepsFileName = "DEPS"

	// cipdPlatformPlaceholder is stripped from CIPD package names.
	cipdPlatformPlaceholder = "${platform}"
)

// DepType distinguishes git dependencies from CIPD packages.
type DepType string

const (
	DepTypeGit  DepType = "git"
	DepTypeCIPD DepType = "cipd"
)

var (
	// We treat "{var_name}" in strings equivalently to a call to Var().
	varSubstRegex = regexp.MustCompile(`{?{(\w+?)}}?`)
)

// DepsEntry represents a single entry in a DEPS file. Note that the 'deps' dict
// may specify that multiple CIPD package are unpacked to the same location; a
// DepsEntry refers to the dependency, not the path, so each CIPD package would
// get its own DepsEntry despite their sharing one key in the 'deps' dict.
type DepsEntry struct {
	// Id is the normalized repo URL for git dependencies and the package
	// name for CIPD packages.
	Id string `json:"id"`

	// URL is the repository URL as written in DEPS, with variables
	// substituted but not normalized. Empty for CIPD packages.
	URL string `json:"url,omitempty"`

	// Version is the currently-pinned version of this dependency. Empty for
	// unpinned git entries.
	Version string `json:"version"`

	// Path is the checkout location, i.e. the key in the 'deps' dict.
	Path string `json:"path"`

	// Type is DepTypeGit or DepTypeCIPD.
	Type DepType `json:"type"`
}

// DepsEntries maps normalized dependency ID to DepsEntry.
type DepsEntries map[string]*DepsEntry

// Get retrieves the DepsEntry with the given ID, accounting for normalization.
// Returns nil if the entry was not found.
func (e DepsEntries) Get(dep string) *DepsEntry {
	return e[NormalizeDep(dep)]
}

// Git returns only the git dependencies, sorted by Id.
func (e DepsEntries) Git() []*DepsEntry {
	rv := make([]*DepsEntry, 0, len(e))
	for _, entry := range e {
		if entry.Type == DepTypeGit {
			rv = append(rv, entry)
		}
	}
	sort.Slice(rv, func(i, j int) bool {
		return rv[i].Id < rv[j].Id
	})
	return rv
}

// ParseDeps parses the DEPS file content and returns a map of normalized
// dependency ID to DepsEntry. It does not attempt to understand the full Python
// syntax upon which DEPS is based and may break completely if the file takes an
// unexpected format.
func ParseDeps(depsContent string) (DepsEntries, error) {
	parsed, err := parser.ParseString(depsContent, "exec")
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	module, ok := parsed.(*ast.Module)
	if !ok {
		return nil, skerr.Fmt("DEPS content did not parse as a module")
	}

	rv := DepsEntries{}
	vars := map[string]ast.Expr{}
	for _, stmt := range module.Body {
		assign, ok := stmt.(*ast.Assign)
		if !ok {
			continue
		}
		dict, ok := assign.Value.(*ast.Dict)
		if !ok {
			continue
		}
		for _, target := range assign.Targets {
			name, ok := target.(*ast.Name)
			if !ok || name.Ctx != ast.Store {
				continue
			}
			if name.Id != "vars" && name.Id != "deps" {
				continue
			}
			keys, err := dictKeys(string(name.Id), dict)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			if name.Id == "vars" {
				for idx, val := range dict.Values {
					vars[keys[idx]] = val
				}
				continue
			}
			for idx, val := range dict.Values {
				entries, err := resolveDepsEntries(vars, keys[idx], val)
				if err != nil {
					return nil, skerr.Wrapf(err, "resolving deps entry %q", keys[idx])
				}
				for _, entry := range entries {
					entry.Id = NormalizeDep(entry.Id)
					rv[entry.Id] = entry
				}
			}
		}
	}
	return rv, nil
}

// GetDep parses the given depsContent and retrieves the given DepsEntry.
// Returns an error if the dep was not found.
func GetDep(depsContent, dep string) (*DepsEntry, error) {
	entries, err := ParseDeps(depsContent)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	entry := entries.Get(dep)
	if entry == nil {
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, skerr.Fmt("Unable to find %q in %s! Failed to encode DEPS entries with: %s", dep, DepsFileName, err)
		}
		return nil, skerr.Fmt("Unable to find %q in %s! Entries:\n%s", dep, DepsFileName, string(b))
	}
	return entry, nil
}

// dictKeys resolves the keys of a top-level dict to strings.
func dictKeys(name string, d *ast.Dict) ([]string, error) {
	if len(d.Keys) != len(d.Values) {
		return nil, skerr.Fmt("Found different numbers of keys and values for %q", name)
	}
	keys := make([]string, 0, len(d.Keys))
	for _, key := range d.Keys {
		switch k := key.(type) {
		case *ast.Str:
			keys = append(keys, string(k.S))
		case *ast.BinOp:
			resolved, err := exprToString(k)
			if err != nil {
				return nil, skerr.Wrapf(err, "failed to resolve key expr in %q", name)
			}
			keys = append(keys, resolved)
		default:
			return nil, skerr.Fmt("Invalid key type for %q: %s", name, key.Type().Name)
		}
	}
	return keys, nil
}

// exprToString resolves the given expression to a string.
func exprToString(expr ast.Expr) (string, error) {
	switch e := expr.(type) {
	case *ast.Str:
		return string(e.S), nil
	case *ast.NameConstant:
		if b, ok := e.Value.(py.Bool); ok {
			return fmt.Sprintf("%v", bool(b)), nil
		}
		return "", skerr.Fmt("Unsupported constant %v", e.Value)
	case *ast.BinOp:
		// We only support addition of strings.
		if e.Op != ast.Add {
			return "", skerr.Fmt("Unsupported binop type %v", e.Op)
		}
		left, err := exprToString(e.Left)
		if err != nil {
			return "", skerr.Wrap(err)
		}
		right, err := exprToString(e.Right)
		if err != nil {
			return "", skerr.Wrap(err)
		}
		return left + right, nil
	}
	return "", skerr.Fmt("Invalid value type %q", expr.Type().Name)
}

// resolveDepsEntries turns one value of the 'deps' dict into DepsEntries.
func resolveDepsEntries(vars map[string]ast.Expr, path string, expr ast.Expr) ([]*DepsEntry, error) {
	expr, err := resolveVars(vars, expr)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	if dict, ok := expr.(*ast.Dict); ok {
		// Either a CIPD package list or a git dep with extra keys such as
		// 'condition'.
		var urlExpr ast.Expr
		for idx, key := range dict.Keys {
			strKey, ok := key.(*ast.Str)
			if !ok {
				return nil, skerr.Fmt("Invalid type for deps entry dict key %q for %q", key.Type().Name, path)
			}
			val := dict.Values[idx]
			switch strKey.S {
			case "url":
				urlExpr = val
			case "packages":
				return resolveCIPDPackages(path, val)
			}
		}
		if urlExpr == nil {
			return nil, skerr.Fmt("Unable to find dependency in deps entry dict for %q", path)
		}
		expr = urlExpr
	}

	// A git dependency in "<repo>@<revision>" form, possibly composed of
	// several strings.
	str, err := exprToString(expr)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	split := strings.SplitN(str, "@", 2)
	entry := &DepsEntry{
		Id:   split[0],
		URL:  split[0],
		Path: path,
		Type: DepTypeGit,
	}
	// Some DEPS files contain unpinned entries with no "@version" suffix.
	// This isn't really valid, but we shouldn't fail to parse them.
	if len(split) == 2 {
		entry.Version = split[1]
	}
	return []*DepsEntry{entry}, nil
}

func resolveCIPDPackages(path string, val ast.Expr) ([]*DepsEntry, error) {
	list, ok := val.(*ast.List)
	if !ok {
		return nil, skerr.Fmt("Invalid type for packages at %q; expected %q but got %q", path, ast.ListType.Name, val.Type().Name)
	}
	entries := make([]*DepsEntry, 0, len(list.Elts))
	for _, pkgExpr := range list.Elts {
		pkgDict, ok := pkgExpr.(*ast.Dict)
		if !ok {
			return nil, skerr.Fmt("Invalid type for CIPD package list entry at %q; expected %q but got %q", path, ast.DictType.Name, pkgExpr.Type().Name)
		}
		entry := &DepsEntry{
			Path: path,
			Type: DepTypeCIPD,
		}
		for idx, key := range pkgDict.Keys {
			strKey, ok := key.(*ast.Str)
			if !ok {
				return nil, skerr.Fmt("Invalid type for CIPD package dict key at %q; expected %q but got %q", path, ast.StrType.Name, key.Type().Name)
			}
			strVal, err := exprToString(pkgDict.Values[idx])
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			switch strKey.S {
			case "package":
				entry.Id = strVal
			case "version":
				entry.Version = strVal
			}
		}
		if entry.Id == "" || entry.Version == "" {
			return nil, skerr.Fmt("CIPD package dict for %q is incomplete", path)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// resolveVars recursively replaces calls to Var() and "{var}" references with
// the ast.Expr for the variable itself.
func resolveVars(vars map[string]ast.Expr, expr ast.Expr) (ast.Expr, error) {
	resolveAll := func(exprs []ast.Expr) ([]ast.Expr, error) {
		rv := make([]ast.Expr, 0, len(exprs))
		for _, e := range exprs {
			resolved, err := resolveVars(vars, e)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			rv = append(rv, resolved)
		}
		return rv, nil
	}

	switch e := expr.(type) {
	case *ast.BinOp:
		left, err := resolveVars(vars, e.Left)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		right, err := resolveVars(vars, e.Right)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		return &ast.BinOp{ExprBase: e.ExprBase, Left: left, Op: e.Op, Right: right}, nil
	case *ast.Dict:
		keys, err := resolveAll(e.Keys)
		if err != nil {
			return nil, err
		}
		vals, err := resolveAll(e.Values)
		if err != nil {
			return nil, err
		}
		return &ast.Dict{ExprBase: e.ExprBase, Keys: keys, Values: vals}, nil
	case *ast.List:
		elts, err := resolveAll(e.Elts)
		if err != nil {
			return nil, err
		}
		return &ast.List{ExprBase: e.ExprBase, Elts: elts, Ctx: e.Ctx}, nil
	case *ast.Tuple:
		elts, err := resolveAll(e.Elts)
		if err != nil {
			return nil, err
		}
		return &ast.Tuple{ExprBase: e.ExprBase, Elts: elts, Ctx: e.Ctx}, nil
	case *ast.Call:
		fn, ok := e.Func.(*ast.Name)
		if !ok || fn.Id != "Var" {
			return expr, nil
		}
		if len(e.Args) != 1 {
			return nil, skerr.Fmt("Calls to Var() must have a single argument")
		}
		key, err := exprToString(e.Args[0])
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		val, ok := vars[key]
		if !ok {
			return nil, skerr.Fmt("No such var: %s", key)
		}
		return val, nil
	case *ast.Str:
		return substituteFormatVars(vars, e)
	}
	// This is a non-recursive or unsupported type. Return expr unchanged.
	return expr, nil
}

// substituteFormatVars approximates gclient's implicit str.format(**vars) on
// string literals by splitting the string into a chain of '+' expressions.
func substituteFormatVars(vars map[string]ast.Expr, str *ast.Str) (ast.Expr, error) {
	s := string(str.S)
	matches := varSubstRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return str, nil
	}
	literal := func(v string) ast.Expr {
		return &ast.Str{ExprBase: str.ExprBase, S: py.String(v)}
	}
	prevIdx := 0
	var exprs []ast.Expr
	for _, match := range matches {
		if len(match) != 4 {
			return nil, skerr.Fmt("Invalid format for regex match; expected 4 indexes but got: %+v", match)
		}
		if prevIdx < match[0] {
			exprs = append(exprs, literal(s[prevIdx:match[0]]))
		}
		if s[match[0]:match[2]] == "{{" && s[match[3]:match[1]] == "}}" {
			// Double-bracketed strings just become single-bracketed.
			exprs = append(exprs, literal(s[match[0]+1:match[1]-1]))
		} else {
			key := s[match[2]:match[3]]
			val, ok := vars[key]
			if !ok {
				return nil, skerr.Fmt("No such var: %s", key)
			}
			exprs = append(exprs, val)
		}
		prevIdx = match[1]
	}
	if prevIdx < len(s) {
		exprs = append(exprs, literal(s[prevIdx:]))
	}
	// Fold right to left into nested BinOps.
	for len(exprs) > 1 {
		n := len(exprs)
		exprs[n-2] = &ast.BinOp{
			ExprBase: str.ExprBase,
			Left:     exprs[n-2],
			Op:       ast.Add,
			Right:    exprs[n-1],
		}
		exprs = exprs[:n-1]
	}
	return exprs[0], nil
}

// NormalizeDep normalizes the dependency ID to account for differences, eg.
// the URL scheme and .git suffix for git repos and the ${platform} suffix for
// CIPD packages.
func NormalizeDep(depId string) string {
	depId = strings.TrimSuffix(depId, "/"+cipdPlatformPlaceholder)
	if rv, err := NormalizeURL(depId); err == nil {
		depId = rv
	}
	return depId
}

// NormalizeURL strips the scheme, any trailing slashes and the ".git" suffix,
// so that "https://host/repo.git/" and "host/repo" compare equal.
func NormalizeURL(inputURL string) (string, error) {
	parsedURL, err := url.Parse(inputURL)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	host := parsedURL.Host
	if parsedURL.Scheme == "ssh" {
		host = strings.Replace(host, ":", "/", 1)
	}
	path := strings.TrimSuffix(strings.TrimRight(parsedURL.Path, "/"), ".git")
	path = strings.TrimLeft(path, "/:")
	if host == "" {
		return path, nil
	}
	return host + "/" + path, nil
}
