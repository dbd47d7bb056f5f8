package entity

// ReportPayload is the record shipped to the monitoring endpoint for one
// detected slow query. It is built once and never mutated afterwards; a fresh
// QueryID is generated for every payload, even when the same statement is
// reported twice.
type ReportPayload struct {
	QueryID         string         `json:"queryId"`
	RawQuery        string         `json:"rawQuery"`
	Parameters      map[string]any `json:"parameters"`
	ExecutionTimeMs float64        `json:"executionTimeMs"`
	StackTrace      []string       `json:"stackTrace"`
	Timestamp       string         `json:"timestamp"`
	ContextType     string         `json:"contextType"`
	Environment     string         `json:"environment"`
	ApplicationName string         `json:"applicationName,omitempty"`
	Version         string         `json:"version,omitempty"`
	ExecutionPlan   ExecutionPlan  `json:"executionPlan"`
}

// ExecutionPlan carries the raw output of a dialect specific EXPLAIN command.
// The neutral value returned by DefaultExecutionPlan is used whenever plan
// capture is disabled, unsupported, or failed, so the field is always present
// on the wire.
type ExecutionPlan struct {
	DatabaseProvider string     `json:"databaseProvider"`
	PlanFormat       PlanFormat `json:"planFormat"`
	Content          string     `json:"content"`
}

// PlanFormat describes how the plan content should be interpreted and stored
// by the receiving side.
type PlanFormat struct {
	ContentType   string `json:"contentType"`
	FileExtension string `json:"fileExtension"`
	Description   string `json:"description"`
}

var (
	PlanFormatJSON = PlanFormat{
		ContentType:   "application/json",
		FileExtension: ".json",
		Description:   "Structured JSON execution plan",
	}
	PlanFormatXML = PlanFormat{
		ContentType:   "application/xml",
		FileExtension: ".xml",
		Description:   "XML showplan document",
	}
	PlanFormatText = PlanFormat{
		ContentType:   "text/plain",
		FileExtension: ".txt",
		Description:   "Plain text execution plan",
	}
)

// DefaultExecutionPlan is the neutral plan used when no plan was captured.
func DefaultExecutionPlan() ExecutionPlan {
	return ExecutionPlan{
		DatabaseProvider: "unknown",
		PlanFormat:       PlanFormatText,
		Content:          "",
	}
}
