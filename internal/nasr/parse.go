package nasr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"swimfeed/internal/geo"
)

// row is one CSV record addressed by column name. Column order shifts
// between subscription releases, so everything goes through the header.
type row struct {
	rec []string
	idx map[string]int
}

func (r row) get(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r row) getFloat(col string) float64 {
	v, _ := strconv.ParseFloat(r.get(col), 64)
	return v
}

func (r row) getInt(col string) int {
	v, _ := strconv.Atoi(r.get(col))
	return v
}

// eachRow streams one tabular file through the callback.
func eachRow(path string, fn func(row)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		fn(row{rec: rec, idx: idx})
	}
}

// Load builds an index from an extracted cycle directory.
func Load(dir string, effective time.Time) (*Index, error) {
	cdir := filepath.Join(dir, cycleDirName(effective))

	x := &Index{
		Cycle:    effective,
		LoadedAt: time.Now().UTC(),
		navaids:  make(map[string][]Navaid),
		fixes:    make(map[string][]Fix),
		byLID:    make(map[string]*Airport),
		byICAO:   make(map[string]*Airport),
		airways:  make(map[string]*Airway),
		procs:    make(map[string][]*Procedure),
	}

	if err := eachRow(filepath.Join(cdir, "NAV_BASE.csv"), func(r row) {
		id := strings.ToUpper(r.get("NAV_ID"))
		if id == "" {
			return
		}
		x.navaids[id] = append(x.navaids[id], Navaid{
			ID:     id,
			Type:   r.get("NAV_TYPE"),
			Name:   r.get("NAME"),
			Pos:    geo.Point{Lat: r.getFloat("LAT_DECIMAL"), Lon: r.getFloat("LONG_DECIMAL")},
			MagVar: magVar(r.get("MAG_VARN"), r.get("MAG_VARN_HEMIS")),
		})
	}); err != nil {
		return nil, err
	}

	if err := eachRow(filepath.Join(cdir, "FIX_BASE.csv"), func(r row) {
		id := strings.ToUpper(r.get("FIX_ID"))
		if id == "" {
			return
		}
		x.fixes[id] = append(x.fixes[id], Fix{
			ID:  id,
			Pos: geo.Point{Lat: r.getFloat("LAT_DECIMAL"), Lon: r.getFloat("LONG_DECIMAL")},
		})
	}); err != nil {
		return nil, err
	}

	if err := eachRow(filepath.Join(cdir, "APT_BASE.csv"), func(r row) {
		lid := strings.ToUpper(r.get("ARPT_ID"))
		if lid == "" {
			return
		}
		a := &Airport{
			LID:    lid,
			ICAO:   strings.ToUpper(r.get("ICAO_ID")),
			Name:   r.get("ARPT_NAME"),
			Pos:    geo.Point{Lat: r.getFloat("LAT_DECIMAL"), Lon: r.getFloat("LONG_DECIMAL")},
			MagVar: magVar(r.get("MAG_VARN"), r.get("MAG_VARN_HEMIS")),
		}
		public := r.get("FACILITY_USE_CODE") == "PU" &&
			strings.EqualFold(r.get("ARPT_STATUS"), "O") &&
			strings.EqualFold(r.get("SITE_TYPE_CODE"), "A")
		if public {
			a.Class = airspaceClass(r.get("FAR_139_TYPE_CODE"), r.get("TWR_TYPE_CODE"))
			x.overlays = append(x.overlays, *a)
		}
		x.byLID[lid] = a
		if a.ICAO != "" {
			x.byICAO[a.ICAO] = a
		}
	}); err != nil {
		return nil, err
	}

	if err := loadAirways(filepath.Join(cdir, "AWY_BASE.csv"), x); err != nil {
		return nil, err
	}
	if err := loadProcedures(filepath.Join(cdir, "DP_RTE.csv"), ProcSID, x); err != nil {
		return nil, err
	}
	if err := loadProcedures(filepath.Join(cdir, "STAR_RTE.csv"), ProcSTAR, x); err != nil {
		return nil, err
	}
	if err := loadCenterlines(filepath.Join(cdir, "ILS_BASE.csv"), x); err != nil {
		return nil, err
	}

	sort.Slice(x.overlays, func(i, j int) bool { return x.overlays[i].LID < x.overlays[j].LID })
	return x, nil
}

// magVar converts the variation magnitude/hemisphere pair to signed degrees,
// east positive.
func magVar(mag, hemis string) float64 {
	v, _ := strconv.ParseFloat(mag, 64)
	if strings.EqualFold(hemis, "W") {
		return -v
	}
	return v
}

// airspaceClass derives the overlay class from certification and tower type.
func airspaceClass(far139, towerType string) string {
	if strings.Contains(far139, "I E") {
		return "B"
	}
	switch strings.ToUpper(towerType) {
	case "TRACON", "RAPCON", "RATCF", "A", "C":
		return "C"
	case "ATCT":
		return "D"
	}
	return "E"
}

// loadAirways reads ordered airway points. Rows for one airway appear in
// point-sequence order; a sequence reset would indicate a second variant,
// which the file format does not carry for airways.
func loadAirways(path string, x *Index) error {
	return eachRow(path, func(r row) {
		id := strings.ToUpper(r.get("AWY_ID"))
		point := strings.ToUpper(r.get("POINT"))
		if id == "" || point == "" {
			return
		}
		a := x.airways[id]
		if a == nil {
			a = &Airway{ID: id}
			x.airways[id] = a
		}
		a.Fixes = append(a.Fixes, point)
	})
}
