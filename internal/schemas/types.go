package schemas

import "encoding/json"

// Tool names an evaluation tool. It is part of every progress address.
type Tool string

const (
	ToolComparison Tool = "comparison"
	ToolABTest     Tool = "abtest"
	ToolMOS        Tool = "mos"
)

// Tools lists the known tools in display order.
var Tools = []Tool{ToolComparison, ToolABTest, ToolMOS}

func (t Tool) Valid() bool {
	switch t {
	case ToolComparison, ToolABTest, ToolMOS:
		return true
	}
	return false
}

// CountItems reports how many judgments a stored payload holds. Comparison
// records count items with at least one tag; A/B and MOS records count
// non-null values.
func (t Tool) CountItems(data []byte) int {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return 0
	}
	switch t {
	case ToolComparison:
		return len(m)
	case ToolABTest, ToolMOS:
		n := 0
		for _, v := range m {
			if string(v) != "null" {
				n++
			}
		}
		return n
	}
	return 0
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

type CreateUserRequest struct {
	ID   *string `json:"id"`
	Name *string `json:"name,omitempty"`
}

type CreateUserResponse struct {
	User
	Message string `json:"message,omitempty"`
}

type DeleteUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ProgressData is one stored judgment record. Data and UpdatedAt are null
// when nothing has been saved for the address yet.
type ProgressData struct {
	UserID     string          `json:"userId"`
	Tool       string          `json:"tool"`
	Experiment string          `json:"experiment"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  *string         `json:"updatedAt"`
}

type ProgressSummary struct {
	Tool       string `json:"tool"`
	Experiment string `json:"experiment"`
	ItemCount  int    `json:"itemCount"`
	UpdatedAt  string `json:"updatedAt"`
}

type UserProgressList struct {
	UserID   string            `json:"userId"`
	Progress []ProgressSummary `json:"progress"`
}

type ExportedProgress struct {
	Tool       string          `json:"tool"`
	Experiment string          `json:"experiment"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  string          `json:"updatedAt"`
}

type UserExport struct {
	UserID     string             `json:"userId"`
	ExportedAt string             `json:"exportedAt"`
	Progress   []ExportedProgress `json:"progress"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ArchiveAccepted struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// ArchiveInfo describes one stored export snapshot.
type ArchiveInfo struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ObjectRef string `json:"objectRef"`
	Records   int64  `json:"records"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
