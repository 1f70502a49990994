package route

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"swimfeed/internal/geo"
	"swimfeed/internal/nasr"
)

var testEffective = time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)

func testIndex(t *testing.T) *nasr.Index {
	t.Helper()
	dir := t.TempDir()
	cdir := filepath.Join(dir, testEffective.Format("2006-01-02"))
	if err := os.MkdirAll(cdir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"NAV_BASE.csv": "NAV_ID,NAV_TYPE,NAME,LAT_DECIMAL,LONG_DECIMAL,MAG_VARN,MAG_VARN_HEMIS\n" +
			"BOS,VOR/DME,BOSTON,42.3573,-70.9892,0,W\n",
		"FIX_BASE.csv": "FIX_ID,LAT_DECIMAL,LONG_DECIMAL\n" +
			"LOGAN,42.45,-70.85\n" +
			"SSOXS,42.1,-70.8\n" +
			"BUZRD,41.4,-70.6\n" +
			"PARCH,41.1,-72.2\n" +
			"CCC,40.93,-72.80\n",
		"APT_BASE.csv": "ARPT_ID,ICAO_ID,ARPT_NAME,SITE_TYPE_CODE,FACILITY_USE_CODE,ARPT_STATUS,FAR_139_TYPE_CODE,TWR_TYPE_CODE,LAT_DECIMAL,LONG_DECIMAL,MAG_VARN,MAG_VARN_HEMIS\n" +
			"BOS,KBOS,LOGAN INTL,A,PU,O,I E S,ATCT,42.3629,-71.0064,0,W\n" +
			"JFK,KJFK,KENNEDY INTL,A,PU,O,I E S,ATCT,40.6399,-73.7787,0,W\n",
		"AWY_BASE.csv": "AWY_ID,POINT_SEQ,POINT\n" +
			"V1,10,SSOXS\n" +
			"V1,20,BUZRD\n" +
			"V1,30,PARCH\n",
		// File order is reverse flight order.
		"DP_RTE.csv": "DP_COMPUTER_CODE,ROUTE_PORTION_TYPE,ROUTE_NAME,ARPT_ID,POINT_SEQ,POINT\n" +
			"LOGAN4.LOGAN,BODY,LOGAN FOUR,BOS,10,SSOXS\n" +
			"LOGAN4.LOGAN,BODY,LOGAN FOUR,BOS,20,LOGAN\n",
		"STAR_RTE.csv": "STAR_COMPUTER_CODE,ROUTE_PORTION_TYPE,ROUTE_NAME,ARPT_ID,POINT_SEQ,POINT\n" +
			"PARCH3.PARCH,BODY,PARCH THREE,JFK,10,CCC\n" +
			"PARCH3.PARCH,BODY,PARCH THREE,JFK,20,PARCH\n" +
			"PARCH3.PARCH,TRANSITION,BUZRD,JFK,10,PARCH\n" +
			"PARCH3.PARCH,TRANSITION,BUZRD,JFK,20,BUZRD\n",
		"ILS_BASE.csv": "ARPT_ID,RWY_END_ID,ILS_LOC_ID,SYSTEM_TYPE_CODE,LAT_DECIMAL,LONG_DECIMAL,MAG_BRG,RWY_LEN\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(cdir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := nasr.Load(dir, testEffective)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func names(wps []Waypoint) []string {
	out := make([]string, len(wps))
	for i, w := range wps {
		out[i] = w.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveSIDAirwaySTAR(t *testing.T) {
	idx := testIndex(t)
	r := NewResolver(func() *nasr.Index { return idx })

	wps := r.Resolve("KBOS", "KJFK", "KBOS LOGAN4 SSOXS V1 BUZRD PARCH3 KJFK")
	got := names(wps)
	// Departure body in flight direction, airway from its nearest fix to
	// the exit, STAR transition from the exit into the body, endpoints
	// from the airport index. Consecutive duplicates collapse.
	want := []string{"KBOS", "LOGAN", "SSOXS", "BUZRD", "PARCH", "CCC", "KJFK"}
	if !equal(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveCached(t *testing.T) {
	idx := testIndex(t)
	r := NewResolver(func() *nasr.Index { return idx })

	a := r.Resolve("KBOS", "KJFK", "SSOXS")
	b := r.Resolve("KBOS", "KJFK", "SSOXS")
	if len(a) == 0 || &a[0] != &b[0] {
		t.Error("second resolve did not come from the cache")
	}
	r.ClearCache(nil)
	c := r.Resolve("KBOS", "KJFK", "SSOXS")
	if &a[0] == &c[0] {
		t.Error("cache not cleared")
	}
	if !equal(names(a), names(c)) {
		t.Errorf("rebuilt expansion differs: %v vs %v", names(a), names(c))
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("KBOS./.DCT SSOXS..V1.BUZRD/N0450F350 DCT")
	want := []string{"KBOS", "SSOXS", "V1", "BUZRD"}
	if !equal(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}

func TestResolveFRD(t *testing.T) {
	idx := testIndex(t)
	r := NewResolver(func() *nasr.Index { return idx })

	wps := r.Resolve("", "", "BOS090025")
	if len(wps) != 1 {
		t.Fatalf("Resolve = %v", wps)
	}
	nav, _ := idx.FindNavaid("BOS", geo.Point{})
	d := geo.DistanceNM(nav.Pos, wps[0].Pos)
	if d < 24.5 || d > 25.5 {
		t.Errorf("FRD point %v NM from station, want ~25", d)
	}
	if wps[0].Pos.Lon <= nav.Pos.Lon {
		t.Errorf("090 radial should be east of the station, got %v", wps[0].Pos)
	}
}

func TestResolveAirwayBackward(t *testing.T) {
	idx := testIndex(t)
	r := NewResolver(func() *nasr.Index { return idx })

	// Entering at PARCH and exiting at SSOXS walks the list backward.
	wps := r.Resolve("", "", "PARCH V1 SSOXS")
	got := names(wps)
	want := []string{"PARCH", "BUZRD", "SSOXS"}
	if !equal(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveUnknownTokenSkipped(t *testing.T) {
	idx := testIndex(t)
	r := NewResolver(func() *nasr.Index { return idx })

	wps := r.Resolve("KBOS", "KJFK", "ZZZZZ SSOXS")
	got := names(wps)
	want := []string{"KBOS", "SSOXS", "KJFK"}
	if !equal(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveNilIndex(t *testing.T) {
	r := NewResolver(func() *nasr.Index { return nil })
	if wps := r.Resolve("KBOS", "KJFK", "SSOXS"); wps != nil {
		t.Errorf("Resolve without an index = %v, want nil", wps)
	}
}
