package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits maps upper-cased suffixes to multipliers. SI units are
// decimal; IEC units are binary.
var sizeUnits = map[string]int64{
	"":    1,
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"KIB": 1 << 10,
	"MIB": 1 << 20,
	"GIB": 1 << 30,
	"TIB": 1 << 40,
}

// ParseSize converts a size such as "50MB", "4MiB" or "1024" to bytes.
// Empty string and "0" return 0; a bare number is raw bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	num, unit := splitUnit(s)

	multiplier, ok := sizeUnits[strings.ToUpper(unit)]
	if !ok || num == "" {
		return 0, fmt.Errorf("invalid size %q: expected a number with an optional unit (B, KB, MiB, ...)", s)
	}

	if unit == "" {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		if n < 0 {
			return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
		}

		return n, nil
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if f < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return int64(f * float64(multiplier)), nil
}

// splitUnit separates the trailing letters of s from the number before
// them. Spaces between the two are dropped.
func splitUnit(s string) (num, unit string) {
	i := len(s)
	for i > 0 && isLetter(s[i-1]) {
		i--
	}

	return strings.TrimSpace(s[:i]), s[i:]
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ParseRate parses a bandwidth such as "5MB/s", "100KB/s" or "0" into bytes
// per second. The "/s" suffix is optional.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)

	size := s
	if strings.HasSuffix(strings.ToLower(size), "/s") {
		size = size[:len(size)-len("/s")]
	}

	n, err := ParseSize(size)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth rate %q: %w", s, err)
	}

	return n, nil
}
