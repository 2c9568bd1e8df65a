package model

import "time"

// Mode selects the built-in pipeline template.
type Mode string

const (
	ModeBase      Mode = "base"
	ModeAugmented Mode = "augmented"
	ModeCustom    Mode = "custom"
)

// ParseMode maps a mode name to a Mode. Empty means base.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeBase:
		return ModeBase, true
	case ModeAugmented:
		return ModeAugmented, true
	case ModeCustom:
		return ModeCustom, true
	}
	return "", false
}

// Conversion is the outcome of converting one source document.
type Conversion struct {
	ID           string            `json:"id"`
	Input        string            `json:"input"`
	WorkflowName string            `json:"workflow_name"`
	Strategy     string            `json:"strategy"`
	Mode         Mode              `json:"mode"`
	Augmented    bool              `json:"augmented"`
	Tier         string            `json:"tier,omitempty"`
	Pipeline     string            `json:"pipeline"`
	Config       string            `json:"config"`
	Resources    ResourceMap       `json:"resources"`
	Containers   ContainerMap      `json:"containers"`
	Validation   *ValidationResult `json:"validation"`
	Diagnostics  Diagnostics       `json:"diagnostics"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BatchItem is one entry of a batch run. Err is nil on success.
type BatchItem struct {
	Input      string      `json:"input"`
	Conversion *Conversion `json:"conversion,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// Successful reports whether the item produced a conversion.
func (b BatchItem) Successful() bool { return b.Err == nil && b.Conversion != nil }

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	ID          string      `json:"id"`
	Total       int         `json:"total"`
	Successful  int         `json:"successful"`
	Failed      int         `json:"failed"`
	SuccessRate float64     `json:"success_rate"`
	Mode        Mode        `json:"mode"`
	Tier        string      `json:"tier,omitempty"`
	Items       []BatchItem `json:"results"`
	Errors      []string    `json:"errors"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HistoryRecord is one persisted conversion row.
type HistoryRecord struct {
	ID           string    `json:"id"`
	BatchID      string    `json:"batch_id,omitempty"`
	Input        string    `json:"input"`
	WorkflowName string    `json:"workflow_name"`
	Strategy     string    `json:"strategy,omitempty"`
	Mode         Mode      `json:"mode,omitempty"`
	Success      bool      `json:"success"`
	Valid        bool      `json:"valid"`
	OverallScore float64   `json:"overall_score"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BatchRecord is one persisted batch row.
type BatchRecord struct {
	ID         string    `json:"id"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}
