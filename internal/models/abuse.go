package models

import "time"

// AbuseReport is a user-submitted report against a listed add-on.
type AbuseReport struct {
	ID         int       `json:"id"`
	AddonID    int       `json:"addon_id"`
	Slug       string    `json:"slug"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
	ReporterIP string    `json:"reporter_ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
}

// AbuseReason describes a predefined reason a report may cite.
type AbuseReason struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// AbuseReasons enumerates the accepted report reasons. Reports citing
// anything else are rejected before they reach storage.
var AbuseReasons = []AbuseReason{
	{Code: "damage", DisplayName: "Damages my computer or my data"},
	{Code: "spam", DisplayName: "Creates spam or advertising"},
	{Code: "settings", DisplayName: "Changes settings without my permission"},
	{Code: "broken", DisplayName: "Doesn't work or breaks websites"},
	{Code: "policy", DisplayName: "Violates add-on policies"},
	{Code: "deceptive", DisplayName: "Pretends to be something it's not"},
	{Code: "unwanted", DisplayName: "Wasn't wanted or can't be uninstalled"},
	{Code: "other", DisplayName: "Something else"},
}

// ValidAbuseReason reports whether code names an accepted reason.
func ValidAbuseReason(code string) bool {
	for _, r := range AbuseReasons {
		if r.Code == code {
			return true
		}
	}
	return false
}
