package providers

import "strconv"

func itoa(n int) string { return strconv.Itoa(n) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
