package api

import (
	"net/http"
	"strconv"
)

var validStats = map[string]bool{
	"kills": true, "deaths": true, "kdr": true,
	"suicides": true, "distance": true, "streak": true,
}

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// validateStat checks if a leaderboard stat is valid
func validateStat(stat string) bool {
	return validStats[stat]
}
