package monitoring

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// AlertStatusCounts is derived from an alert collection and must be
// recomputed whenever the collection changes
type AlertStatusCounts struct {
	Total        int `json:"total"`
	New          int `json:"new"`
	Acknowledged int `json:"acknowledged"`
	InProgress   int `json:"in_progress"`
	Resolved     int `json:"resolved"`
	FalseAlarm   int `json:"false_alarm"`
}

// Aggregate counts records by status in a single pass. Records with an
// unrecognized status only count towards Total.
func Aggregate(records []AlertRecord) AlertStatusCounts {
	var counts AlertStatusCounts
	for _, r := range records {
		counts.Total++
		if bucket := counts.bucket(r.Status); bucket != nil {
			*bucket++
		}
	}
	return counts
}

func (c *AlertStatusCounts) bucket(status AlertStatus) *int {
	switch status {
	case StatusNew:
		return &c.New
	case StatusAcknowledged:
		return &c.Acknowledged
	case StatusInProgress:
		return &c.InProgress
	case StatusResolved:
		return &c.Resolved
	case StatusFalseAlarm:
		return &c.FalseAlarm
	}
	return nil
}

// Get returns the count of the named status bucket
func (c AlertStatusCounts) Get(status AlertStatus) int {
	if bucket := c.bucket(status); bucket != nil {
		return *bucket
	}
	return 0
}

// Named sums the five named buckets. It equals Total when every
// status was recognized.
func (c AlertStatusCounts) Named() int {
	return c.New + c.Acknowledged + c.InProgress + c.Resolved + c.FalseAlarm
}

// CountsDelta is the per-status change caused by one alert update
type CountsDelta map[AlertStatus]int

// Apply merges delta into the counts. Total only moves when the delta
// itself is unbalanced (create or delete).
func (c AlertStatusCounts) Apply(delta CountsDelta) AlertStatusCounts {
	net := 0
	for status, n := range delta {
		if bucket := c.bucket(status); bucket != nil {
			*bucket += n
		}
		net += n
	}
	c.Total += net
	return c
}

// CountByType counts records per alert type
func CountByType(records []AlertRecord) map[AlertType]int {
	return lo.CountValuesBy(records, func(r AlertRecord) AlertType {
		return r.AlertType
	})
}

// CountByStatus counts records per raw status value, recognized or not
func CountByStatus(records []AlertRecord) map[AlertStatus]int {
	return lo.CountValuesBy(records, func(r AlertRecord) AlertStatus {
		return r.Status
	})
}

// CountByDay counts records per creation day in loc and keeps the most
// recent days that have at least one alert. Keys use 2006-01-02.
func CountByDay(records []AlertRecord, days int, loc *time.Location) map[string]int {
	if loc == nil {
		loc = time.UTC
	}

	perDay := lo.CountValuesBy(records, func(r AlertRecord) string {
		return r.CreatedAt.In(loc).Format(time.DateOnly)
	})
	if days <= 0 || len(perDay) <= days {
		return perDay
	}

	keys := lo.Keys(perDay)
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	return lo.PickByKeys(perDay, keys[:days])
}

// BandCounts counts readings per severity band
type BandCounts struct {
	Normal   int `json:"normal"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// Total returns the number of classified readings
func (b BandCounts) Total() int {
	return b.Normal + b.Warning + b.Critical
}

// SummarizeReadings classifies each reading and counts bands per sensor
// type. Readings whose type has no ThresholdSet are skipped.
func SummarizeReadings(readings []SensorReading, thresholds Thresholds) map[SensorType]BandCounts {
	summary := make(map[SensorType]BandCounts)
	for _, r := range readings {
		band, err := Classify(r.SensorType, r.Value, thresholds)
		if err != nil {
			continue
		}

		counts := summary[r.SensorType]
		switch band {
		case BandCritical:
			counts.Critical++
		case BandWarning:
			counts.Warning++
		default:
			counts.Normal++
		}
		summary[r.SensorType] = counts
	}
	return summary
}

// AverageValue averages the readings of sensorType, optionally restricted
// to deviceID. It returns 0 when nothing matches.
func AverageValue(readings []SensorReading, sensorType SensorType, deviceID string) float64 {
	matching := lo.Filter(readings, func(r SensorReading, _ int) bool {
		return r.SensorType == sensorType && (deviceID == "" || r.DeviceID == deviceID)
	})
	if len(matching) == 0 {
		return 0
	}

	sum := lo.SumBy(matching, func(r SensorReading) float64 { return r.Value })
	return sum / float64(len(matching))
}
