// Package source locates track archives, extracts them and discovers the CSV
// files they contain.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive is an extracted track archive.
type Archive struct {
	Ref      string // reference as given by the caller (path or URL)
	Path     string // local path of the zip file
	Track    string // track name derived from the archive name
	Dir      string // directory the archive was extracted into
	Checksum string // sha256 of the archive bytes
	Entries  int    // number of extracted files
}

// Cleanup removes the extraction directory.
func (a *Archive) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// ExtractionError reports an archive that could not be opened or unpacked.
// It is fatal for that archive only.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TrackName returns the archive's base name without its extension.
//
//	/data/barber-motorsports-park.zip -> barber-motorsports-park
func TrackName(ref string) string {
	base := ref
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
