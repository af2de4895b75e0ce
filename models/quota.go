package models

import "time"

// Quota tiers. Guests are keyed by IP, free users by their account ID.
const (
	LevelGuest = "guest"
	LevelFree  = "free"
)

// QuotaStatus reports the outcome of a quota check or consumption.
type QuotaStatus struct {
	Allowed      bool   `json:"allowed"`
	Remaining    int    `json:"remaining"`
	Limit        int    `json:"limit"`
	Level        string `json:"level"`
	ResetTime    string `json:"resetTime,omitempty"`
	BonusApplied bool   `json:"bonusApplied,omitempty"`
}

// DecrementResult reports the state after refunding scans (ad recharge).
type DecrementResult struct {
	Success   bool   `json:"success"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Level     string `json:"level"`
	Count     int    `json:"count"`
	Message   string `json:"message,omitempty"`
}

// BonusResult reports a login bonus transfer from guest usage to a user record.
type BonusResult struct {
	BonusApplied   bool `json:"bonusApplied"`
	GuestScansUsed int  `json:"guestScansUsed,omitempty"`
	BonusScans     int  `json:"bonusScans,omitempty"`
	Remaining      int  `json:"remaining,omitempty"`
}

// NextUTCMidnight returns the instant at which daily quotas reset.
func NextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// DayString formats t as the UTC calendar day used to key daily records.
func DayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
