package models

import (
	"time"

	"gorm.io/datatypes"
)

// Exam is one student's submitted set of question/answer pairs. Questions are
// kept as serialized JSON and decoded at the dto boundary.
type Exam struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	StudentName string         `gorm:"size:255;not null" json:"student_name"`
	Questions   datatypes.JSON `gorm:"not null" json:"questions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Result      *ExamResult    `gorm:"foreignKey:ExamID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"result,omitempty"`
}

// ExamResult is the graded outcome for an exam. There is at most one per exam.
type ExamResult struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ExamID    uint           `gorm:"not null;uniqueIndex" json:"exam_id"`
	Feedback  datatypes.JSON `gorm:"not null" json:"feedback"`
	Score     float64        `gorm:"not null;default:0" json:"score"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
