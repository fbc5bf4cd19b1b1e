package models

import "time"

// StudyAidKind distinguishes the per-lesson study aid documents.
type StudyAidKind string

const (
	StudyAidHighlights  StudyAidKind = "highlights"
	StudyAidNotes       StudyAidKind = "notes"
	StudyAidAnnotations StudyAidKind = "annotations"
	StudyAidBookmarks   StudyAidKind = "bookmarks"
)

// ValidStudyAidKind reports whether the string names a study aid document.
func ValidStudyAidKind(raw string) bool {
	switch StudyAidKind(raw) {
	case StudyAidHighlights, StudyAidNotes, StudyAidAnnotations, StudyAidBookmarks:
		return true
	}
	return false
}

// StudyAid is a whole-document study artifact keyed by (user, lesson, kind).
// Payload is opaque JSON owned by the client; saves replace the document so
// a later get returns exactly what was stored.
type StudyAid struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"user_id"`
	LessonID  string       `db:"lesson_id" json:"lesson_id"`
	Kind      StudyAidKind `db:"kind" json:"kind"`
	Payload   []byte       `db:"payload" json:"payload"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}
