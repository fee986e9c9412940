// Package exclude implements the path exclusion policy for the file indexer.
// It decides which paths are never indexed: version-control and cache
// directories, build output, virtual environments, editor state, hidden
// segments outside a small whitelist, and basenames matching a fixed glob
// blocklist. The policy is a pure predicate over the path string.
package exclude

import (
	"path/filepath"
	"strings"
)

// defaultExcludeDirs are directory basenames that are never descended into.
var defaultExcludeDirs = []string{
	// Version control
	".git",
	".svn",
	".hg",
	// Dependency and build output
	"node_modules",
	"bower_components",
	"vendor",
	"dist",
	"build",
	"target",
	"__pycache__",
	// Virtual environments
	"venv",
	".venv",
	".tox",
	// Caches
	".cache",
	".npm",
	".cargo",
	".gradle",
	".mypy_cache",
	".pytest_cache",
	// Editor state
	".idea",
	".vscode",
}

// defaultExcludeGlobs match file basenames that are never indexed:
// object files, logs, swap files, partial downloads, compiled bytecode,
// and packaged build artifacts.
var defaultExcludeGlobs = []string{
	"*.o",
	"*.obj",
	"*.a",
	"*.so",
	"*.log",
	"*.swp",
	"*.swo",
	"*.swn",
	"*.tmp",
	"*.temp",
	"*.part",
	"*.partial",
	"*.crdownload",
	"*.pyc",
	"*.pyo",
	"*.class",
	"*.jar",
	"*.whl",
}

// defaultHiddenAllow are hidden directory names that are indexed despite the
// hidden-segment rule. Launcher users routinely keep real files under these.
var defaultHiddenAllow = []string{
	".config",
	".local",
}

// Policy decides whether a path is eligible for indexing.
// The zero value is not usable; construct with New.
type Policy struct {
	dirs        map[string]struct{}
	globs       []string
	hiddenAllow map[string]struct{}
}

// New returns a Policy with the default blocklists.
func New() *Policy {
	return build(nil, nil)
}

// NewWithExtra returns a Policy with the defaults plus additional directory
// names and basename globs from configuration.
func NewWithExtra(extraDirs, extraGlobs []string) *Policy {
	return build(extraDirs, extraGlobs)
}

func build(extraDirs, extraGlobs []string) *Policy {
	p := &Policy{
		dirs:        make(map[string]struct{}, len(defaultExcludeDirs)+len(extraDirs)),
		globs:       make([]string, 0, len(defaultExcludeGlobs)+len(extraGlobs)),
		hiddenAllow: make(map[string]struct{}, len(defaultHiddenAllow)),
	}
	for _, d := range defaultExcludeDirs {
		p.dirs[d] = struct{}{}
	}
	for _, d := range extraDirs {
		p.dirs[d] = struct{}{}
	}
	p.globs = append(p.globs, defaultExcludeGlobs...)
	p.globs = append(p.globs, extraGlobs...)
	for _, h := range defaultHiddenAllow {
		p.hiddenAllow[h] = struct{}{}
	}
	return p
}

// IsExcluded reports whether path is ineligible for indexing.
// A path is excluded if any segment matches the directory blocklist, any
// segment is hidden and not whitelisted, or the basename matches a glob in
// the pattern blocklist.
func (p *Policy) IsExcluded(path string) bool {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if _, ok := p.dirs[seg]; ok {
			return true
		}
		if strings.HasPrefix(seg, ".") {
			if _, ok := p.hiddenAllow[seg]; !ok {
				return true
			}
		}
	}

	base := filepath.Base(path)
	for _, glob := range p.globs {
		// Patterns are fixed and valid, so the only error Match can
		// return never fires here.
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
	}
	return false
}

// IsExcludedDir reports whether a directory should be pruned before
// descending. This is a basename-only check so tree walks can skip entire
// excluded subtrees without statting their contents.
func (p *Policy) IsExcludedDir(dirpath string) bool {
	base := filepath.Base(dirpath)
	if _, ok := p.dirs[base]; ok {
		return true
	}
	if strings.HasPrefix(base, ".") && base != "." && base != ".." {
		if _, ok := p.hiddenAllow[base]; !ok {
			return true
		}
	}
	return false
}
