package level

import (
	"math"
	"strconv"
)

func formatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64) + "%"
}
