package models

// RowResult is the outcome of importing a single raw row
type RowResult struct {
	Index     int      `json:"index"`
	RowRef    string   `json:"rowRef"`
	Success   bool     `json:"success"`
	TradeID   string   `json:"tradeId,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Error     string   `json:"error,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// BatchImportResult is returned by a batch import. It is not persisted.
type BatchImportResult struct {
	BatchID            string      `json:"batchId"`
	AccountID          string      `json:"accountId"`
	Success            bool        `json:"success"`
	ProcessedCount     int         `json:"processedCount"`
	FailedCount        int         `json:"failedCount"`
	DuplicateCount     int         `json:"duplicateCount"`
	RecomputeTriggered bool        `json:"recomputeTriggered"`
	PerRowResults      []RowResult `json:"perRowResults"`
}
