package domain

// Report is the set of fields collected over one conversation.
// Contact and FilePath are nil when the user skipped them.
type Report struct {
	Theme       string  `json:"theme"`
	Description string  `json:"description"`
	Contact     *string `json:"contact"`
	FilePath    *string `json:"file"`
}

// Incident is a persisted report.
type Incident struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	Report
}
