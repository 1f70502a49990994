package nasr

import (
	"math"
	"strings"

	"swimfeed/internal/geo"
)

const (
	finalLengthNM = 15.0
	feetPerNM     = 6076.12
)

// centerlineSystems are the localizer-based approach systems worth a final
// on the scope. GPS/RNAV approaches have no ground antenna to plot from.
var centerlineSystems = map[string]bool{
	"ILS": true, "ILS/DME": true,
	"LOC": true, "LOC/DME": true, "LOCALIZER": true,
	"LDA": true, "LDA/DME": true,
	"SDF": true, "SDF/DME": true,
}

// loadCenterlines computes a threshold-to-15NM final for each localizer.
// The localizer antenna sits past the stop end; walking the reciprocal of
// the true course for the runway length lands at the threshold, and the
// outer endpoint is a further 15 NM out on the same bearing.
func loadCenterlines(path string, x *Index) error {
	return eachRow(path, func(r row) {
		system := strings.ToUpper(r.get("SYSTEM_TYPE_CODE"))
		if !centerlineSystems[system] {
			return
		}
		airport := strings.ToUpper(r.get("ARPT_ID"))
		loc := geo.Point{Lat: r.getFloat("LAT_DECIMAL"), Lon: r.getFloat("LONG_DECIMAL")}
		if loc.IsZero() {
			return
		}

		variation := 0.0
		if a, ok := x.byLID[airport]; ok {
			variation = a.MagVar
		}
		course := math.Mod(r.getFloat("MAG_BRG")+variation+360, 360)
		recip := math.Mod(course+180, 360)
		lengthNM := r.getFloat("RWY_LEN") / feetPerNM

		threshold := geo.Project(loc, recip, lengthNM)
		outer := geo.Project(threshold, recip, finalLengthNM)

		x.finals = append(x.finals, Centerline{
			Airport:   airport,
			Runway:    strings.ToUpper(r.get("RWY_END_ID")),
			LocID:     strings.ToUpper(r.get("ILS_LOC_ID")),
			System:    system,
			Course:    course,
			Threshold: threshold,
			Outer:     outer,
		})
	})
}
