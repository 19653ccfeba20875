package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var reInt = regexp.MustCompile(`[0-9]+`)

func ParseIntSafe(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

// ExtractFirstInt возвращает первое целое число в строке.
// Пример: "=12" -> 12, "#301-350" -> 301, "n/a" -> nil
func ExtractFirstInt(s string) *int {
	clean := strings.ReplaceAll(s, " ", "")
	clean = strings.ReplaceAll(clean, " ", "")
	m := reInt.FindString(clean)
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}

// ClampPage нормализует limit/offset для списков
func ClampPage(limit, offset, def, max int) (int, int) {
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
