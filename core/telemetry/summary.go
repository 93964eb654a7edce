package telemetry

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the fleet battery picture for reporting.
type Summary struct {
	Count           int       `json:"count"`
	LowBatteryCount int       `json:"low_battery_count"`
	ChargingCount   int       `json:"charging_count"`
	AverageLevel    float64   `json:"average_level"`
	Timestamp       time.Time `json:"timestamp"`
}

// Summarize computes the fleet summary from a set of snapshots.
func Summarize(states []BatteryState) Summary {
	s := Summary{Count: len(states), Timestamp: time.Now().UTC()}
	if len(states) == 0 {
		return s
	}
	levels := make([]float64, 0, len(states))
	for _, st := range states {
		levels = append(levels, float64(st.Level))
		if st.Level < LowBatteryBelow {
			s.LowBatteryCount++
		}
		if st.Charging {
			s.ChargingCount++
		}
	}
	s.AverageLevel = stat.Mean(levels, nil)
	return s
}

// LowBattery returns snapshots below the LOW threshold, ascending by level.
func LowBattery(states []BatteryState) []BatteryState {
	low := make([]BatteryState, 0)
	for _, st := range states {
		if st.Level < LowBatteryBelow {
			low = append(low, st)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Level < low[j].Level })
	return low
}
