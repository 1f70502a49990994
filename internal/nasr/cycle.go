package nasr

import (
	"fmt"
	"time"
)

// cycleAnchor is a known AIRAC effective date; every cycle boundary is a
// whole number of 28-day periods from it.
var cycleAnchor = time.Date(2025, time.January, 23, 0, 0, 0, 0, time.UTC)

const cycleLength = 28 * 24 * time.Hour

// CurrentCycle returns the effective date of the cycle containing now.
func CurrentCycle(now time.Time) time.Time {
	n := now.UTC().Sub(cycleAnchor) / cycleLength
	if now.UTC().Before(cycleAnchor) {
		n--
	}
	return cycleAnchor.Add(n * cycleLength)
}

// NextCycle returns the effective date of the cycle after the one
// containing now.
func NextCycle(now time.Time) time.Time {
	return CurrentCycle(now).Add(cycleLength)
}

// subscriptionURL is the dated archive for one cycle.
func subscriptionURL(effective time.Time) string {
	return fmt.Sprintf("https://nfdc.faa.gov/webContent/28DaySub/extra/%s_CSV.zip",
		effective.Format("02_Jan_2006"))
}

// cycleDirName is the on-disk cache directory for one cycle.
func cycleDirName(effective time.Time) string {
	return effective.Format("2006-01-02")
}
