package progress

import "time"

// Progress is a student's enrollment/progress record for one course,
// provisioned when course access is granted.
type Progress struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	OverallProgress int       `json:"overall_progress"` // percentage
	EnrolledAt      time.Time `json:"enrolled_at"`      // UTC
}
