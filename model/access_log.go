package model

import "time"

// API types recorded on access log entries.
const (
	APITypeGeneral = "general"
	APITypeEvent   = "event"
	APITypeAdmin   = "admin"
)

// AccessLog is one audited attempt to perform an action: an API call, a
// queue delivery or a worker run.
type AccessLog struct {
	ID          int64     `json:"id" db:"id"`
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
	Endpoint    string    `json:"endpoint" db:"endpoint"`
	Action      string    `json:"action" db:"action"`
	Successful  bool      `json:"successful" db:"successful"`
	UserID      string    `json:"userId" db:"user_id"`
	WorkspaceID string    `json:"workspaceId" db:"workspace_id"`
	Details     string    `json:"details" db:"details"`
	APIType     string    `json:"apiType" db:"api_type"`
}

// TableName returns the database table name for AccessLog.
func (a AccessLog) TableName() string {
	return tablePrefix + "access_log"
}

// NewAccessLog creates an access log entry stamped with the current time.
// An empty apiType defaults to APITypeGeneral.
func NewAccessLog(endpoint, action string, successful bool, userID, workspaceID, details, apiType string) AccessLog {
	if apiType == "" {
		apiType = APITypeGeneral
	}
	return AccessLog{
		Timestamp:   time.Now().UTC(),
		Endpoint:    endpoint,
		Action:      action,
		Successful:  successful,
		UserID:      userID,
		WorkspaceID: workspaceID,
		Details:     details,
		APIType:     apiType,
	}
}

// Outcome returns "successfully" or "failed to" for log lines.
func (a AccessLog) Outcome() string {
	if a.Successful {
		return "successfully"
	}
	return "failed to"
}
