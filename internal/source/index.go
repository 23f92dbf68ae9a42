package source

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// CSVFile is a CSV file found in an extracted archive.
type CSVFile struct {
	Path string // full path on disk
	Rel  string // path relative to the extraction root, slash separated
	Name string // base file name
	Size int64  // size in bytes
}

// Stem returns the file name without its extension.
func (f CSVFile) Stem() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// Discover walks dir and returns its CSV files in lexical walk order.
// Matching on the ".csv" extension ignores case. macOS resource-fork
// folders are skipped.
func Discover(dir string) ([]CSVFile, error) {
	var files []CSVFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && d.Name() == "__MACOSX" {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsCSVFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}

		files = append(files, CSVFile{
			Path: path,
			Rel:  filepath.ToSlash(rel),
			Name: d.Name(),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

// IsCSVFile checks if a path has a .csv extension.
func IsCSVFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
