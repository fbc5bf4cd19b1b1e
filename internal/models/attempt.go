package models

import "time"

// StudentAttempt is one append-only quiz answer. Resubmission is allowed;
// scoring always takes the latest attempt per quiz id.
type StudentAttempt struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	LessonID         string    `db:"lesson_id" json:"lesson_id"`
	QuizID           string    `db:"quiz_id" json:"quiz_id"`
	SelectedOptionID string    `db:"selected_option_id" json:"selected_option_id"`
	Correct          bool      `db:"correct" json:"correct"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// SubmitAttemptRequest records a quiz answer.
type SubmitAttemptRequest struct {
	LessonID         string `json:"lesson_id" validate:"required"`
	QuizID           string `json:"quiz_id" validate:"required"`
	SelectedOptionID string `json:"selected_option_id" validate:"required"`
}

// LessonProgress summarises one lesson for a student.
type LessonProgress struct {
	LessonID     string  `json:"lesson_id"`
	LessonTitle  string  `json:"lesson_title"`
	QuizCount    int     `json:"quiz_count"`
	Attempted    int     `json:"attempted"`
	CorrectLatest int    `json:"correct_latest"`
	Completed    bool    `json:"completed"`
	ScorePercent float64 `json:"score_percent"`
}

// StudentSummary aggregates a student's progress across completed lessons.
type StudentSummary struct {
	StudentID        string           `json:"student_id"`
	LessonsCompleted int              `json:"lessons_completed"`
	AverageScore     float64          `json:"average_score"`
	Lessons          []LessonProgress `json:"lessons"`
}

// ModuleEligibility reports whether a student qualifies for a module
// certificate: all required lessons complete and average score at or above
// the module threshold.
type ModuleEligibility struct {
	ModuleID       string  `json:"module_id"`
	ModuleTitle    string  `json:"module_title"`
	CourseID       string  `json:"course_id"`
	RequiredDone   int     `json:"required_done"`
	RequiredTotal  int     `json:"required_total"`
	AverageScore   float64 `json:"average_score"`
	MinScore       float64 `json:"min_score"`
	Eligible       bool    `json:"eligible"`
}
