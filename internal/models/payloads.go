package models

// These structs define the JSON payloads exchanged with the dashboard over HTTP.

// UploadResponse is returned by POST /upload on success.
type UploadResponse struct {
	Status           string `json:"status"`
	RecordsProcessed int    `json:"records_processed"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is returned by POST /chat, including when answering failed.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RemarkCount is one bucket of the pass/fail breakdown. ID is nil for records
// without a remark.
type RemarkCount struct {
	ID    *string `json:"_id"`
	Count int     `json:"count"`
}

// Stats is returned by GET /stats.
type Stats struct {
	Total    int           `json:"total"`
	AvgCGPA  float64       `json:"avg_cgpa"`
	PassFail []RemarkCount `json:"pass_fail"`
	CGPADist []float64     `json:"cgpa_dist"`
}

// EmptyStats is the zero-state response for an empty store. Slices are non-nil so
// they encode as [] rather than null.
func EmptyStats() *Stats {
	return &Stats{
		PassFail: []RemarkCount{},
		CGPADist: []float64{},
	}
}
