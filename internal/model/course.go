package model

import "gorm.io/datatypes"

// Course 课程，归属一位讲师
// swagger:model Course
type Course struct {
	BaseModel
	InstructorID uint    `gorm:"index;not null" json:"instructorId"`
	Title        string  `gorm:"size:200;not null" json:"title"`
	Description  string  `gorm:"type:text" json:"description"`
	Category     string  `gorm:"size:100;index" json:"category"` // 同时作为附件存储目录
	IsPublished  bool    `gorm:"default:false" json:"isPublished"`
	IsFree       bool    `gorm:"default:false" json:"isFree"`
	Price        float64 `gorm:"type:decimal(10,2);default:0" json:"price"`
	RatingAvg    float64 `gorm:"type:decimal(3,2);default:0" json:"ratingAvg"`
	RatingCount  int     `gorm:"default:0" json:"ratingCount"`
}

func (Course) TableName() string {
	return "courses"
}

// Attachment 课时附件元数据，文件本体在存储目录中
type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

// Lesson 课时，lesson_order 在课程内唯一
// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID    uint                            `gorm:"not null;uniqueIndex:idx_course_lesson_order" json:"courseId"`
	Title       string                          `gorm:"size:200;not null" json:"title"`
	Content     string                          `gorm:"type:text" json:"content"`
	LessonOrder int                             `gorm:"not null;uniqueIndex:idx_course_lesson_order" json:"lessonOrder"`
	IsPreview   bool                            `gorm:"default:false" json:"isPreview"`
	IsPublished bool                            `gorm:"default:false" json:"isPublished"`
	VideoURL    string                          `gorm:"size:500" json:"videoUrl"`
	Duration    int                             `gorm:"default:0" json:"duration"` // 秒
	Attachments datatypes.JSONSlice[Attachment] `json:"attachments"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// FindAttachment 按文件名查找附件
func (l *Lesson) FindAttachment(filename string) (Attachment, bool) {
	for _, a := range l.Attachments {
		if a.Filename == filename {
			return a, true
		}
	}
	return Attachment{}, false
}
