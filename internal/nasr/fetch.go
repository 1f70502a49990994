package nasr

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// requiredFiles are the tabular files a cycle load needs. A cycle missing
// any of them fails to load and the previous index stays in place.
var requiredFiles = []string{
	"NAV_BASE.csv",
	"FIX_BASE.csv",
	"APT_BASE.csv",
	"AWY_BASE.csv",
	"DP_RTE.csv",
	"STAR_RTE.csv",
	"ILS_BASE.csv",
}

// cycleCached reports whether every required file is already extracted for
// the cycle.
func cycleCached(dir string, effective time.Time) bool {
	cdir := filepath.Join(dir, cycleDirName(effective))
	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(cdir, name)); err != nil {
			return false
		}
	}
	return true
}

// fetchCycle downloads the dated subscription archive and extracts the
// required tabular files into dir/<cycle-date>/. The outer archive is
// streamed to a temp file first; the FAA archive nests per-category zips,
// and holding the whole thing in memory is not an option.
func fetchCycle(ctx context.Context, client *http.Client, dir string, effective time.Time) error {
	cdir := filepath.Join(dir, cycleDirName(effective))
	if err := os.MkdirAll(cdir, 0o755); err != nil {
		return err
	}

	url := subscriptionURL(effective)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	outer, err := streamToTemp(resp.Body, dir, "nasr-outer-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(outer)

	if err := extractArchive(outer, cdir, dir); err != nil {
		return err
	}

	var missing []string
	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(cdir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cycle %s incomplete, missing %s",
			cycleDirName(effective), strings.Join(missing, ", "))
	}
	return nil
}

// streamToTemp copies r to a temp file in dir and returns its path.
func streamToTemp(r io.Reader, dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// extractArchive pulls every wanted csv out of the zip at path, descending
// one level into nested zips (which are themselves streamed to temp files,
// zip needs random access).
func extractArchive(path, cdir, tmpdir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		switch {
		case wantedCSV(base):
			if err := extractFile(f, filepath.Join(cdir, base)); err != nil {
				return err
			}
		case strings.HasSuffix(strings.ToLower(base), ".zip"):
			rc, err := f.Open()
			if err != nil {
				return err
			}
			nested, err := streamToTemp(rc, tmpdir, "nasr-nested-*.zip")
			rc.Close()
			if err != nil {
				return err
			}
			err = extractArchive(nested, cdir, tmpdir)
			os.Remove(nested)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func wantedCSV(name string) bool {
	for _, want := range requiredFiles {
		if name == want {
			return true
		}
	}
	return false
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
