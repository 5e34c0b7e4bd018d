package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/assetgov/internal/model"
)

// ErrNoDefinitions is returned when a directory holds no definition files.
var ErrNoDefinitions = errors.New("no asset definitions found")

// Catalog is the result of scanning a definitions directory.
//
// Definitions holds every valid definition in file order. Problems holds
// one *LoadError per unreadable file or rejected definition; a problem
// never hides the valid definitions around it.
type Catalog struct {
	Definitions []Definition
	Problems    []error
	Files       int
}

// LoadDir scans dir recursively for *.yaml, *.yml and *.cue files.
// Files are read in lexical path order. When the same key is declared
// twice, the first declaration wins and the second is reported.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("definitions directory: not a directory: %s", dir)
	}

	files, err := findDefinitionFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDefinitions, dir)
	}

	cat := &Catalog{Files: len(files)}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, path := range files {
		defs, errs := loadFile(path)
		cat.Problems = append(cat.Problems, errs...)
		for _, d := range defs {
			if err := d.Validate(); err != nil {
				cat.Problems = append(cat.Problems, err)
				continue
			}
			key, _ := model.NormalizeAssetKey(d.Key)
			if !seen.Add(key) {
				cat.Problems = append(cat.Problems, d.errorf("key", "duplicate asset key %q", key))
				continue
			}
			cat.Definitions = append(cat.Definitions, d)
		}
	}
	return cat, nil
}

func loadFile(path string) ([]Definition, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{File: path, Field: "file", Message: err.Error()}}
	}
	if strings.ToLower(filepath.Ext(path)) == ".cue" {
		return loadCUE(path, data)
	}
	return loadYAML(path, data)
}

// IsDefinitionFile reports whether path has a definitions file extension.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}

func findDefinitionFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsDefinitionFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
