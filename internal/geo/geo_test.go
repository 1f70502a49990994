package geo

import (
	"math"
	"testing"
)

func TestDistanceNM(t *testing.T) {
	// KBOS to KJFK is about 161 NM.
	bos := Point{Lat: 42.3643, Lon: -71.0052}
	jfk := Point{Lat: 40.6399, Lon: -73.7787}

	d := DistanceNM(bos, jfk)
	if d < 155 || d > 170 {
		t.Errorf("DistanceNM(KBOS, KJFK) = %.1f, want ~161", d)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	p := Point{Lat: 40.0, Lon: -75.0}
	q := Project(p, 90, 60)

	if d := DistanceNM(p, q); math.Abs(d-60) > 0.1 {
		t.Errorf("projected distance = %.3f, want 60", d)
	}
	if q.Lat > p.Lat+0.5 || q.Lat < p.Lat-0.5 {
		t.Errorf("due-east projection moved latitude too far: %.3f", q.Lat)
	}
}

func TestNearest(t *testing.T) {
	anchor := Point{Lat: 40.0, Lon: -75.0}
	cands := []Point{
		{Lat: 45.0, Lon: -70.0},
		{Lat: 40.1, Lon: -75.1},
		{Lat: 30.0, Lon: -90.0},
	}
	if got := Nearest(anchor, cands); got != 1 {
		t.Errorf("Nearest = %d, want 1", got)
	}
	if got := Nearest(Point{}, cands); got != 0 {
		t.Errorf("Nearest with zero anchor = %d, want 0", got)
	}
	if got := Nearest(anchor, nil); got != -1 {
		t.Errorf("Nearest with no candidates = %d, want -1", got)
	}
}
