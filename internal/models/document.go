package models

import "time"

// Ingestion is the metadata record written alongside each committed batch of
// student records. It tracks where the batch came from and how it was processed.
type Ingestion struct {
	IngestionID      string    `firestore:"ingestionId,omitempty" json:"ingestion_id"`
	FileHash         string    `firestore:"fileHash,omitempty" json:"file_hash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty" json:"original_filename,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty" json:"page_count"`
	RecordCount      int       `firestore:"recordCount,omitempty" json:"record_count"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty" json:"created_at"`
}

// DocumentRef addresses a staged copy of an uploaded document. The extraction
// model is pointed at the whole document and told which page to read.
type DocumentRef struct {
	URI      string
	MIMEType string
	// Object is the backing object name, used to release the staged copy.
	Object string
}
