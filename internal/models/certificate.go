package models

import "time"

// Certificate is issued at most once per (user, module). Code is the 8
// character uppercase verification handle shared publicly.
type Certificate struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	ModuleID    string    `db:"module_id" json:"module_id"`
	Code        string    `db:"code" json:"code"`
	ModuleTitle string    `db:"module_title" json:"module_title"`
	CourseTitle string    `db:"course_title" json:"course_title"`
	HolderName  string    `db:"holder_name" json:"holder_name"`
	FilePath    string    `db:"file_path" json:"-"`
	IssuedAt    time.Time `db:"issued_at" json:"issued_at"`
}

// IssueCertificateRequest asks for issuance of a module certificate.
type IssueCertificateRequest struct {
	ModuleID string `json:"module_id" validate:"required"`
}

// CertificateVerification is the public lookup result.
type CertificateVerification struct {
	Valid       bool      `json:"valid"`
	Code        string    `json:"code"`
	HolderName  string    `json:"holder_name,omitempty"`
	ModuleTitle string    `json:"module_title,omitempty"`
	CourseTitle string    `json:"course_title,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitempty"`
}
