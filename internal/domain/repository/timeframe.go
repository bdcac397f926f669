package repository

// Day ranges accepted by the OHLC endpoint. Other values are rounded up.
var historyRanges = []int{1, 7, 14, 30, 90, 180, 365}

// DefaultHistoryDays is the range used when the caller asks for none.
const DefaultHistoryDays = 7

// IsValidHistoryDays returns true if days is a range the OHLC endpoint accepts as-is.
func IsValidHistoryDays(days int) bool {
	for _, d := range historyRanges {
		if d == days {
			return true
		}
	}
	return false
}

// NormalizeHistoryDays maps days to the smallest accepted range covering it.
func NormalizeHistoryDays(days int) int {
	if days <= 0 {
		return DefaultHistoryDays
	}
	for _, d := range historyRanges {
		if days <= d {
			return d
		}
	}
	return historyRanges[len(historyRanges)-1]
}
