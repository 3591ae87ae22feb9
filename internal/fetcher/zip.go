package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// datasetExts are the spreadsheet formats the importer reads.
var datasetExts = map[string]bool{".xlsx": true, ".csv": true}

// ExtractDataset unpacks the first .xlsx or .csv entry of the archive at
// zipPath into destDir and returns its path.
func ExtractDataset(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !datasetExts[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		// macOS resource forks share the extension.
		if strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		return extractEntry(f, destDir)
	}
	return "", eris.Errorf("zip: no .xlsx or .csv file in %s", filepath.Base(zipPath))
}

// extractEntry writes f below destDir, rejecting paths that escape it.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	return destPath, nil
}
