package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Course is the top level of the curriculum tree.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseModule groups lessons inside a course. LessonIDs carries the lesson
// sequence; MinScorePercent is the completion threshold for certificates.
type CourseModule struct {
	ID                string         `db:"id" json:"id"`
	CourseID          string         `db:"course_id" json:"course_id"`
	Title             string         `db:"title" json:"title"`
	Description       string         `db:"description" json:"description"`
	SortOrder         int            `db:"sort_order" json:"sort_order"`
	LessonIDs         pq.StringArray `db:"lesson_ids" json:"lesson_ids"`
	RequiredLessonIDs pq.StringArray `db:"required_lesson_ids" json:"required_lesson_ids"`
	MinScorePercent   float64        `db:"min_score_percent" json:"min_score_percent"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// RequiredLessons returns the lesson ids that gate module completion. When no
// explicit subset is configured every lesson in the module is required.
func (m *CourseModule) RequiredLessons() []string {
	if len(m.RequiredLessonIDs) > 0 {
		return m.RequiredLessonIDs
	}
	return m.LessonIDs
}

// QuizOption is one selectable answer.
type QuizOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Quiz is a single question with options; lessons embed quizzes as JSONB.
type Quiz struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	Options         []QuizOption `json:"options"`
	CorrectOptionID string       `json:"correct_option_id"`
}

// Lesson is the unit of study. BibleQuizzes and NoteQuizzes are stored as
// JSONB columns; ids inside are trimmed on load.
type Lesson struct {
	ID          string    `db:"id" json:"id"`
	ModuleID    string    `db:"module_id" json:"module_id"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	BibleQuizes []byte    `db:"bible_quizzes" json:"-"`
	NoteQuizes  []byte    `db:"note_quizzes" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Quizzes decodes both quiz groups into a single slice.
func (l *Lesson) Quizzes() ([]Quiz, error) {
	var bible, note []Quiz
	if len(l.BibleQuizes) > 0 {
		if err := json.Unmarshal(l.BibleQuizes, &bible); err != nil {
			return nil, err
		}
	}
	if len(l.NoteQuizes) > 0 {
		if err := json.Unmarshal(l.NoteQuizes, &note); err != nil {
			return nil, err
		}
	}
	quizzes := make([]Quiz, 0, len(bible)+len(note))
	for _, q := range append(bible, note...) {
		q.ID = strings.TrimSpace(q.ID)
		quizzes = append(quizzes, q)
	}
	return quizzes, nil
}

// QuizCount returns the total number of quizzes in the lesson.
func (l *Lesson) QuizCount() (int, error) {
	quizzes, err := l.Quizzes()
	if err != nil {
		return 0, err
	}
	return len(quizzes), nil
}

// AdjacentLessons names the previous and next lesson relative to a position
// in the effective course ordering.
type AdjacentLessons struct {
	PrevLessonID *string `json:"prev_lesson_id,omitempty"`
	NextLessonID *string `json:"next_lesson_id,omitempty"`
}

// LessonDraft is one imported lesson awaiting commit.
type LessonDraft struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content"`
	SortOrder   int    `json:"sort_order"`
	BibleQuizes []Quiz `json:"bible_quizzes"`
	NoteQuizes  []Quiz `json:"note_quizzes"`
}

// ModuleDraft is one imported module with its lessons.
type ModuleDraft struct {
	ID              string        `json:"id"`
	Title           string        `json:"title" validate:"required"`
	Description     string        `json:"description"`
	SortOrder       int           `json:"sort_order"`
	MinScorePercent float64       `json:"min_score_percent"`
	Lessons         []LessonDraft `json:"lessons" validate:"dive"`
}

// CourseDraft is a typed import bundle produced by the spreadsheet adapter.
// Nothing in it is persisted until explicitly committed.
type CourseDraft struct {
	ID          string        `json:"id"`
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	SortOrder   int           `json:"sort_order"`
	Modules     []ModuleDraft `json:"modules" validate:"required,dive"`
}
