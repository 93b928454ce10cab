package model

import "time"

type PaymentStatus string

const (
	PaymentFree    PaymentStatus = "free"
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
)

// Enrollment 学生选课记录，进度字段由课时进度推导
// swagger:model Enrollment
type Enrollment struct {
	BaseModel
	StudentID          uint          `gorm:"not null;uniqueIndex:idx_student_course" json:"studentId"`
	CourseID           uint          `gorm:"not null;uniqueIndex:idx_student_course" json:"courseId"`
	ProgressPercentage float64       `gorm:"type:decimal(5,2);default:0" json:"progressPercentage"`
	IsCompleted        bool          `gorm:"default:false" json:"isCompleted"`
	CompletionDate     *time.Time    `json:"completionDate"`
	PaymentStatus      PaymentStatus `gorm:"size:20;default:'free'" json:"paymentStatus"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// LessonProgress 学生单个课时的学习进度
// swagger:model LessonProgress
type LessonProgress struct {
	BaseModel
	StudentID      uint       `gorm:"not null;uniqueIndex:idx_student_lesson" json:"studentId"`
	LessonID       uint       `gorm:"not null;uniqueIndex:idx_student_lesson" json:"lessonId"`
	IsCompleted    bool       `gorm:"default:false" json:"isCompleted"`
	TimeSpent      int        `gorm:"default:0" json:"timeSpent"`    // 秒，只增不减
	LastPosition   int        `gorm:"default:0" json:"lastPosition"` // 秒，以最后一次上报为准
	CompletionDate *time.Time `json:"completionDate"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}
