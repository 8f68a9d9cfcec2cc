package leaderboard

// Entry is one ranked row, profile joined with the owning user.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	XP       int    `json:"xp"`
	Level    int    `json:"level"`
	Streak   int    `json:"streak"`
}

// AssignRanks numbers entries 1..n in slice order. Rows are expected
// pre-sorted by XP descending with earlier profile creation breaking
// ties, so ranks come out dense and unique.
func AssignRanks(entries []Entry) []Entry {
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
