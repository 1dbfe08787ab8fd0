package model

import "time"

// Announcement is one downloaded ASX announcement PDF.
type Announcement struct {
	CompanyID       string    `json:"company_id"`
	DocumentID      string    `json:"document_id"`
	FilePath        string    `json:"file_path"`
	PublicationDate time.Time `json:"publication_date,omitzero"`
	PageCount       int       `json:"page_count,omitempty"`
}

// Key identifies an announcement by company and document.
func (a Announcement) Key() string {
	return a.CompanyID + "/" + a.DocumentID
}
