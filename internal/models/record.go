package models

// StudentRecord is one student's row from a results gazette. JSON keys follow the
// extraction contract the model is asked to produce and the shape the dashboard reads.
type StudentRecord struct {
	SeatNo     string         `json:"Seat_No"`
	Name       string         `json:"Name"` // always uppercase once normalized
	GrandTotal *int           `json:"Grand_Total,omitempty"`
	SGPA       []float64      `json:"SGPA,omitempty"` // one value per period, column order
	CGPA       *float64       `json:"CGPA,omitempty"`
	Remark     string         `json:"Remark,omitempty"`
	Subjects   []SubjectScore `json:"Subjects"`
}

// SubjectScore is a single subject column for a student.
type SubjectScore struct {
	Name       string  `json:"Name"` // subject code and label, e.g. "SHM-133 Physics"
	Total      int     `json:"Total"`
	Grade      string  `json:"Grade"`
	GradePoint float64 `json:"GP"`
}

// HasCGPA reports whether the record carries a non-zero CGPA.
func (r StudentRecord) HasCGPA() bool {
	return r.CGPA != nil && *r.CGPA != 0
}
