package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProgressService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	ProgressRepo   *repository.ProgressRepository
	Events         EventPublisher
	DB             *gorm.DB
	Now            func() time.Time
}

func NewProgressService(
	courseRepo *repository.CourseRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	progressRepo *repository.ProgressRepository,
	events EventPublisher,
	db *gorm.DB,
) *ProgressService {
	return &ProgressService{
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		ProgressRepo:   progressRepo,
		Events:         events,
		DB:             db,
		Now:            time.Now,
	}
}

// ProgressUpdate 课时进度上报
type ProgressUpdate struct {
	LessonID     uint `json:"lesson_id" binding:"required"`
	CourseID     uint `json:"course_id"`
	IsCompleted  bool `json:"is_completed"`
	TimeSpent    int  `json:"time_spent"`
	LastPosition int  `json:"last_position" binding:"min=0"`
	ForceUpdate  bool `json:"force_update"`
}

type ProgressResult struct {
	Message            string
	IsCompleted        bool
	CompletionChanged  bool
	ProgressPercentage float64
	CourseCompleted    bool
}

// RecordProgress 记录课时进度；完成状态变化时在同一事务中重算选课进度
func (s *ProgressService) RecordProgress(ctx context.Context, actor Actor, req ProgressUpdate) (*ProgressResult, error) {
	result, err := s.recordProgress(ctx, actor, req)
	switch {
	case err == nil:
		monitoring.LessonProgressUpdates.WithLabelValues("ok").Inc()
	case errors.Is(err, util.ErrNotEnrolled):
		monitoring.LessonProgressUpdates.WithLabelValues("not_enrolled").Inc()
	case errors.Is(err, util.ErrLessonNotFound):
		monitoring.LessonProgressUpdates.WithLabelValues("not_found").Inc()
	default:
		monitoring.LessonProgressUpdates.WithLabelValues("error").Inc()
	}
	return result, err
}

func (s *ProgressService) recordProgress(ctx context.Context, actor Actor, req ProgressUpdate) (*ProgressResult, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	if req.LessonID == 0 {
		return nil, fmt.Errorf("%w: lesson_id is required", util.ErrValidation)
	}

	courseID := req.CourseID
	if courseID == 0 {
		lesson, err := s.findLesson(req.LessonID)
		if err != nil {
			return nil, err
		}
		courseID = lesson.CourseID
	}

	enrolled, err := s.EnrollmentRepo.Exists(actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, util.ErrNotEnrolled
	}

	lesson, err := s.findLesson(req.LessonID)
	if err != nil {
		return nil, err
	}
	if lesson.CourseID != courseID || !lesson.IsPublished || lesson.Course == nil || !lesson.Course.IsPublished {
		return nil, util.ErrLessonNotFound
	}

	now := s.Now()
	result := &ProgressResult{}
	var enrollment *model.Enrollment

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.EnrollmentRepo.WithTx(tx).FindForUpdate(actor.UserID, courseID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrNotEnrolled
		}
		if err != nil {
			return err
		}

		progressRepo := s.ProgressRepo.WithTx(tx)
		progress, err := progressRepo.Find(actor.UserID, lesson.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			progress = &model.LessonProgress{StudentID: actor.UserID, LessonID: lesson.ID}
		} else if err != nil {
			return err
		}

		result.CompletionChanged = ApplyProgress(progress, req, now)
		if err := progressRepo.Save(progress); err != nil {
			return err
		}
		result.IsCompleted = progress.IsCompleted

		if !result.CompletionChanged {
			return nil
		}

		wasCompleted := enrollment.IsCompleted
		if err := s.recomputeEnrollment(tx, enrollment, now); err != nil {
			return err
		}
		result.CourseCompleted = !wasCompleted && enrollment.IsCompleted
		return nil
	})
	if err != nil {
		if errors.Is(err, util.ErrNotEnrolled) {
			return nil, err
		}
		logger.Log.Error("record lesson progress failed",
			zap.Uint("studentID", actor.UserID),
			zap.Uint("lessonID", req.LessonID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record progress: %w", err)
	}

	result.ProgressPercentage = enrollment.ProgressPercentage
	switch {
	case result.CompletionChanged && result.IsCompleted:
		result.Message = "Lesson marked as completed"
	case result.CompletionChanged:
		result.Message = "Lesson marked as incomplete"
	default:
		result.Message = "Progress saved"
	}

	if result.CourseCompleted {
		publish(ctx, s.Events, EventCourseCompleted, CourseCompletedEvent{
			StudentID:   actor.UserID,
			CourseID:    courseID,
			CompletedAt: now,
		})
	}
	return result, nil
}

// ApplyProgress 把上报合并进课时进度，返回完成状态是否发生变化。
// 学习时长只增不减，位置以最后一次上报为准；只有 force_update 才能取消完成。
func ApplyProgress(p *model.LessonProgress, u ProgressUpdate, now time.Time) bool {
	if u.TimeSpent > 0 {
		p.TimeSpent += u.TimeSpent
	}
	p.LastPosition = u.LastPosition

	switch {
	case u.IsCompleted:
		if !p.IsCompleted {
			p.IsCompleted = true
			p.CompletionDate = &now
			return true
		}
		if p.CompletionDate == nil {
			p.CompletionDate = &now
		}
	case u.ForceUpdate:
		p.CompletionDate = nil
		if p.IsCompleted {
			p.IsCompleted = false
			return true
		}
	}
	return false
}

// ApplyAggregate 根据已完成/已发布课时数更新选课进度及完成标记
func ApplyAggregate(e *model.Enrollment, completed, total int64, now time.Time) {
	e.ProgressPercentage = util.Percent(float64(completed), float64(total))
	complete := e.ProgressPercentage >= 100
	switch {
	case !complete:
		e.CompletionDate = nil
	case !e.IsCompleted || e.CompletionDate == nil:
		e.CompletionDate = &now
	}
	e.IsCompleted = complete
}

func (s *ProgressService) recomputeEnrollment(tx *gorm.DB, enrollment *model.Enrollment, now time.Time) error {
	total, err := s.CourseRepo.WithTx(tx).CountPublishedLessons(enrollment.CourseID)
	if err != nil {
		return err
	}
	completed, err := s.ProgressRepo.WithTx(tx).CountCompletedPublished(enrollment.StudentID, enrollment.CourseID)
	if err != nil {
		return err
	}
	ApplyAggregate(enrollment, completed, total, now)
	return s.EnrollmentRepo.WithTx(tx).Save(enrollment)
}

func (s *ProgressService) findLesson(lessonID uint) (*model.Lesson, error) {
	lesson, err := s.CourseRepo.FindLessonByID(lessonID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lesson %d: %w", lessonID, err)
	}
	return lesson, nil
}

type LessonProgressView struct {
	LessonID       uint       `json:"lessonId"`
	Title          string     `json:"title"`
	LessonOrder    int        `json:"lessonOrder"`
	IsCompleted    bool       `json:"isCompleted"`
	TimeSpent      int        `json:"timeSpent"`
	LastPosition   int        `json:"lastPosition"`
	CompletionDate *time.Time `json:"completionDate"`
}

type CourseProgress struct {
	CourseID           uint                 `json:"courseId"`
	ProgressPercentage float64              `json:"progressPercentage"`
	IsCompleted        bool                 `json:"isCompleted"`
	CompletionDate     *time.Time           `json:"completionDate"`
	CompletedLessons   int                  `json:"completedLessons"`
	TotalLessons       int                  `json:"totalLessons"`
	Lessons            []LessonProgressView `json:"lessons"`
}

// GetCourseProgress 返回学生在课程中的汇总进度及各课时明细
func (s *ProgressService) GetCourseProgress(actor Actor, courseID uint) (*CourseProgress, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	enrollment, err := s.EnrollmentRepo.Find(actor.UserID, courseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	lessons, err := s.CourseRepo.ListLessons(courseID, true)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	progress, err := s.ProgressRepo.ListForCourse(actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	view := &CourseProgress{
		CourseID:           courseID,
		ProgressPercentage: enrollment.ProgressPercentage,
		IsCompleted:        enrollment.IsCompleted,
		CompletionDate:     enrollment.CompletionDate,
		TotalLessons:       len(lessons),
		Lessons:            make([]LessonProgressView, 0, len(lessons)),
	}
	for _, l := range lessons {
		p := progress[l.ID]
		if p.IsCompleted {
			view.CompletedLessons++
		}
		view.Lessons = append(view.Lessons, LessonProgressView{
			LessonID:       l.ID,
			Title:          l.Title,
			LessonOrder:    l.LessonOrder,
			IsCompleted:    p.IsCompleted,
			TimeSpent:      p.TimeSpent,
			LastPosition:   p.LastPosition,
			CompletionDate: p.CompletionDate,
		})
	}
	return view, nil
}
