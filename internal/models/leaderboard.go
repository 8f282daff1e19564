package models

type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	TotalMinutes int    `json:"total_minutes"`
}

type SubjectTotal struct {
	Subject      string `json:"subject"`
	TotalMinutes int    `json:"total_minutes"`
}

type Leaderboard struct {
	Entries       []LeaderboardEntry `json:"leaderboard"`
	UserRank      int                `json:"user_rank"`
	TotalUsers    int                `json:"total_users"`
	SubjectTotals []SubjectTotal     `json:"subject_totals"`
}
