package service

import (
	"regexp"
	"strconv"
)

var seedPattern = regexp.MustCompile(`Using seed:\s*(\d+)`)

// ExtractSeed scans the provider's free-text log for the seed it actually
// used. The format is not contractual; any mismatch yields absent rather
// than an error, so provider log drift degrades gracefully.
func ExtractSeed(logs string) (int, bool) {
	m := seedPattern.FindStringSubmatch(logs)
	if m == nil {
		return 0, false
	}
	seed, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return seed, true
}
