package repository

import (
	"time"

	"learnhub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) WithTx(tx *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: tx}
}

// Create 同时创建测验及其题目
func (r *QuizRepository) Create(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) FindByID(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.First(&quiz, id).Error
	return &quiz, err
}

// FindWithQuestions 按题目顺序带出全部题目
func (r *QuizRepository) FindWithQuestions(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("question_order asc, id asc")
	}).First(&quiz, id).Error
	return &quiz, err
}

// ListActiveByLessons 返回挂在指定课时上的启用测验
func (r *QuizRepository) ListActiveByLessons(lessonIDs []uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	if len(lessonIDs) == 0 {
		return quizzes, nil
	}
	err := r.DB.Where("lesson_id IN ? AND is_active = ?", lessonIDs, true).Find(&quizzes).Error
	return quizzes, err
}

func (r *QuizRepository) FindQuestion(quizID, questionID uint) (*model.QuizQuestion, error) {
	var q model.QuizQuestion
	err := r.DB.Where("quiz_id = ? AND id = ?", quizID, questionID).First(&q).Error
	return &q, err
}

// DeleteQuestion 删除题目，不会重新计算历史作答分数
func (r *QuizRepository) DeleteQuestion(questionID uint) error {
	return r.DB.Delete(&model.QuizQuestion{}, questionID).Error
}

// CountCompletedAttempts 只统计已提交（completed_at 非空）的作答
func (r *QuizRepository) CountCompletedAttempts(quizID, studentID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ? AND completed_at IS NOT NULL", quizID, studentID).
		Count(&count).Error
	return count, err
}

// CountAttempts 统计全部作答（含进行中/已放弃），用于生成作答序号
func (r *QuizRepository) CountAttempts(quizID, studentID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Count(&count).Error
	return count, err
}

// FindLatestOpenAttempt 返回最近一次未提交的作答
func (r *QuizRepository) FindLatestOpenAttempt(quizID, studentID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.Where("quiz_id = ? AND student_id = ? AND completed_at IS NULL", quizID, studentID).
		Order("started_at desc, id desc").
		First(&attempt).Error
	return &attempt, err
}

func (r *QuizRepository) CreateAttempt(attempt *model.QuizAttempt) error {
	return r.DB.Create(attempt).Error
}

// FindAttemptForUpdate 锁定作答记录，防止重复提交
func (r *QuizRepository) FindAttemptForUpdate(quizID, attemptID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("quiz_id = ? AND id = ?", quizID, attemptID).
		First(&attempt).Error
	return &attempt, err
}

func (r *QuizRepository) SaveAttempt(attempt *model.QuizAttempt) error {
	return r.DB.Save(attempt).Error
}

func (r *QuizRepository) ListAttempts(quizID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Where("quiz_id = ?", quizID).Order("student_id asc, attempt_number asc").Find(&attempts).Error
	return attempts, err
}

func (r *QuizRepository) ListStudentAttempts(quizID, studentID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Order("attempt_number asc").
		Find(&attempts).Error
	return attempts, err
}

// DeleteAllAttempts 物理删除测验的全部作答记录，返回删除条数
func (r *QuizRepository) DeleteAllAttempts(quizID uint) (int64, error) {
	result := r.DB.Unscoped().Where("quiz_id = ?", quizID).Delete(&model.QuizAttempt{})
	return result.RowsAffected, result.Error
}

// PassedQuizIDs 返回学生已通过的测验ID集合
func (r *QuizRepository) PassedQuizIDs(studentID uint, quizIDs []uint) (map[uint]bool, error) {
	passed := make(map[uint]bool)
	if len(quizIDs) == 0 {
		return passed, nil
	}
	var ids []uint
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("student_id = ? AND quiz_id IN ? AND is_passed = ? AND completed_at IS NOT NULL", studentID, quizIDs, true).
		Distinct().
		Pluck("quiz_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		passed[id] = true
	}
	return passed, nil
}

// OpenAttemptWithLimit 未提交作答及其测验限时
type OpenAttemptWithLimit struct {
	AttemptID uint
	StartedAt time.Time
	TimeLimit int
}

// ListOpenTimedAttempts 返回所有限时测验上未提交的作答
func (r *QuizRepository) ListOpenTimedAttempts() ([]OpenAttemptWithLimit, error) {
	var rows []OpenAttemptWithLimit
	err := r.DB.Table("quiz_attempts a").
		Select("a.id as attempt_id, a.started_at, q.time_limit").
		Joins("JOIN quizzes q ON q.id = a.quiz_id AND q.deleted_at IS NULL").
		Where("a.deleted_at IS NULL AND a.completed_at IS NULL AND q.time_limit IS NOT NULL AND q.time_limit > 0").
		Scan(&rows).Error
	return rows, err
}

func (r *QuizRepository) FindCompletion(studentID, quizID uint) (*model.QuizCompletion, error) {
	var completion model.QuizCompletion
	err := r.DB.Where("student_id = ? AND quiz_id = ?", studentID, quizID).First(&completion).Error
	return &completion, err
}

func (r *QuizRepository) SaveCompletion(completion *model.QuizCompletion) error {
	return r.DB.Save(completion).Error
}

// CompletedQuizIDs 返回学生手动标记完成的测验ID集合
func (r *QuizRepository) CompletedQuizIDs(studentID uint, quizIDs []uint) (map[uint]bool, error) {
	done := make(map[uint]bool)
	if len(quizIDs) == 0 {
		return done, nil
	}
	var ids []uint
	err := r.DB.Model(&model.QuizCompletion{}).
		Where("student_id = ? AND quiz_id IN ? AND is_completed = ?", studentID, quizIDs, true).
		Pluck("quiz_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}
