package repository

import (
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// Find 记录不存在时返回 gorm.ErrRecordNotFound
func (r *ProgressRepository) Find(studentID, lessonID uint) (*model.LessonProgress, error) {
	var progress model.LessonProgress
	err := r.DB.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).First(&progress).Error
	return &progress, err
}

func (r *ProgressRepository) Save(progress *model.LessonProgress) error {
	return r.DB.Save(progress).Error
}

// CountCompletedPublished 统计学生在课程中已完成的已发布课时数
func (r *ProgressRepository) CountCompletedPublished(studentID, courseID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progress.lesson_id AND lessons.deleted_at IS NULL").
		Where("lesson_progress.student_id = ? AND lesson_progress.is_completed = ?", studentID, true).
		Where("lessons.course_id = ? AND lessons.is_published = ?", courseID, true).
		Count(&count).Error
	return count, err
}

// ListForCourse 返回学生在课程下全部课时的进度，按课时ID索引
func (r *ProgressRepository) ListForCourse(studentID, courseID uint) (map[uint]model.LessonProgress, error) {
	var rows []model.LessonProgress
	err := r.DB.Model(&model.LessonProgress{}).
		Select("lesson_progress.*").
		Joins("JOIN lessons ON lessons.id = lesson_progress.lesson_id AND lessons.deleted_at IS NULL").
		Where("lesson_progress.student_id = ? AND lessons.course_id = ?", studentID, courseID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uint]model.LessonProgress, len(rows))
	for _, row := range rows {
		result[row.LessonID] = row
	}
	return result, nil
}
