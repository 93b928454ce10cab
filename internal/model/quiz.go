package model

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	}
	return false
}

// Quiz 测验，可挂在课程或具体课时上
// swagger:model Quiz
type Quiz struct {
	BaseModel
	CourseID     uint    `gorm:"index;not null" json:"courseId"`
	LessonID     *uint   `gorm:"index" json:"lessonId"`
	Title        string  `gorm:"size:200;not null" json:"title"`
	Description  string  `gorm:"type:text" json:"description"`
	PassingScore float64 `gorm:"type:decimal(5,2);default:70" json:"passingScore"`
	MaxAttempts  int     `gorm:"default:3" json:"maxAttempts"`
	TimeLimit    *int    `json:"timeLimit"` // 分钟，空表示不限时
	IsActive     bool    `gorm:"not null" json:"isActive"`

	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// Deadline 返回从 startedAt 开始的作答截止时间，不限时返回 false
func (q *Quiz) Deadline(startedAt time.Time) (time.Time, bool) {
	if q.TimeLimit == nil || *q.TimeLimit <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*q.TimeLimit) * time.Minute), true
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	BaseModel
	QuizID        uint                        `gorm:"index;not null" json:"quizId"`
	Type          QuestionType                `gorm:"size:20;not null" json:"type"`
	Question      string                      `gorm:"type:text;not null" json:"question"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer string                      `gorm:"size:500;not null" json:"-"`
	Points        float64                     `gorm:"type:decimal(6,2);default:1" json:"points"`
	QuestionOrder int                         `gorm:"default:0" json:"questionOrder"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// QuizAttempt 一次测验作答，CompletedAt 为空表示进行中或已放弃
// swagger:model QuizAttempt
type QuizAttempt struct {
	BaseModel
	QuizID        uint              `gorm:"index:idx_quiz_student;not null" json:"quizId"`
	StudentID     uint              `gorm:"index:idx_quiz_student;not null" json:"studentId"`
	AttemptNumber int               `gorm:"not null" json:"attemptNumber"`
	Score         float64           `gorm:"type:decimal(5,2);default:0" json:"score"`
	IsPassed      bool              `gorm:"default:false" json:"isPassed"`
	Answers       datatypes.JSONMap `json:"answers,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuizCompletion 手动标记的测验完成状态，与作答记录相互独立
// swagger:model QuizCompletion
type QuizCompletion struct {
	BaseModel
	StudentID   uint       `gorm:"not null;uniqueIndex:idx_student_quiz" json:"studentId"`
	QuizID      uint       `gorm:"not null;uniqueIndex:idx_student_quiz" json:"quizId"`
	IsCompleted bool       `gorm:"default:false" json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (QuizCompletion) TableName() string {
	return "quiz_completions"
}
