package entity

import "strconv"

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ParseAmount parses a user-supplied amount string
func ParseAmount(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
