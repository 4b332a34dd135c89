package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	displayTimeLayout = "Jan 2, 2006 3:04 PM"
	displayDateLayout = "Jan 2, 2006"
)

// formatNumber prints v without trailing zeros, e.g. 35 or 35.5.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// celsius renders v rounded to one decimal with the unit suffix.
func celsius(v float64) string {
	return formatNumber(round(v, 1)) + "°C"
}

func wholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

func wholeHours(d time.Duration) int {
	return int(d / time.Hour)
}

// formatOnTime renders a duration as "Xh Ym".
func formatOnTime(d time.Duration) string {
	return fmt.Sprintf("%dh %dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
