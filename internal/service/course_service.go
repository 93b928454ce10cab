package service

import (
	"errors"
	"fmt"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
)

type CourseService struct {
	Access         *AccessService
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	ProgressRepo   *repository.ProgressRepository
	QuizRepo       *repository.QuizRepository
}

func NewCourseService(
	access *AccessService,
	courseRepo *repository.CourseRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	progressRepo *repository.ProgressRepository,
	quizRepo *repository.QuizRepository,
) *CourseService {
	return &CourseService{
		Access:         access,
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		ProgressRepo:   progressRepo,
		QuizRepo:       quizRepo,
	}
}

type EnrollResult struct {
	Enrolled        bool              `json:"enrolled"`
	PaymentRequired bool              `json:"paymentRequired"`
	Message         string            `json:"message"`
	Enrollment      *model.Enrollment `json:"enrollment,omitempty"`
}

// Enroll 免费课程直接选课；付费课程需走支付流程，这里只返回提示
func (s *CourseService) Enroll(actor Actor, courseID uint) (*EnrollResult, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students can enroll", util.ErrPermissionDenied)
	}
	course, err := s.Access.LoadCourse(actor, courseID)
	if err != nil {
		return nil, err
	}

	existing, err := s.EnrollmentRepo.Find(actor.UserID, course.ID)
	if err == nil {
		return &EnrollResult{Enrolled: true, Message: "You are already enrolled in this course", Enrollment: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	if !course.IsFree && course.Price > 0 {
		return &EnrollResult{PaymentRequired: true, Message: "Payment is required to enroll in this course"}, nil
	}

	enrollment := &model.Enrollment{
		StudentID:     actor.UserID,
		CourseID:      course.ID,
		PaymentStatus: model.PaymentFree,
	}
	if err := s.EnrollmentRepo.Create(enrollment); err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return &EnrollResult{Enrolled: true, Message: "Enrolled successfully", Enrollment: enrollment}, nil
}

// GetLesson 返回可访问的课时详情
func (s *CourseService) GetLesson(actor Actor, lessonID uint) (*model.Lesson, error) {
	return s.Access.RequireLesson(actor, lessonID)
}

type OutlineLesson struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	LessonOrder int    `json:"lessonOrder"`
	IsPreview   bool   `json:"isPreview"`
	IsCompleted bool   `json:"isCompleted"`
	IsUnlocked  bool   `json:"isUnlocked"`
	CanAccess   bool   `json:"canAccess"`
}

type CourseOutline struct {
	Course   *model.Course   `json:"course"`
	Enrolled bool            `json:"enrolled"`
	Lessons  []OutlineLesson `json:"lessons"`
}

// GetOutline 返回课程目录。课时 N 在课时 N-1 完成且其课时测验均已通过或标记完成后解锁；
// 第一课和预览课时始终解锁。解锁状态仅供展示，不影响访问控制。
func (s *CourseService) GetOutline(actor Actor, courseID uint) (*CourseOutline, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	course, err := s.Access.LoadCourse(actor, courseID)
	if err != nil {
		return nil, err
	}
	manager := actor.CanManage(course)

	lessons, err := s.CourseRepo.ListLessons(course.ID, !manager)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	enrolled := false
	progress := map[uint]model.LessonProgress{}
	quizDone := map[uint]bool{}
	quizzesByLesson := map[uint][]uint{}

	if actor.IsStudent() {
		enrolled, err = s.EnrollmentRepo.Exists(actor.UserID, course.ID)
		if err != nil {
			return nil, fmt.Errorf("check enrollment: %w", err)
		}
	}
	if enrolled {
		progress, err = s.ProgressRepo.ListForCourse(actor.UserID, course.ID)
		if err != nil {
			return nil, fmt.Errorf("list progress: %w", err)
		}
		quizzesByLesson, quizDone, err = s.lessonQuizState(actor.UserID, lessons)
		if err != nil {
			return nil, err
		}
	}

	outline := &CourseOutline{Course: course, Enrolled: enrolled, Lessons: make([]OutlineLesson, 0, len(lessons))}
	prevSatisfied := true
	for i, l := range lessons {
		completed := progress[l.ID].IsCompleted
		unlocked := manager || i == 0 || l.IsPreview || prevSatisfied

		outline.Lessons = append(outline.Lessons, OutlineLesson{
			ID:          l.ID,
			Title:       l.Title,
			LessonOrder: l.LessonOrder,
			IsPreview:   l.IsPreview,
			IsCompleted: completed,
			IsUnlocked:  unlocked,
			CanAccess:   manager || l.IsPreview || enrolled,
		})

		prevSatisfied = completed
		for _, quizID := range quizzesByLesson[l.ID] {
			if !quizDone[quizID] {
				prevSatisfied = false
			}
		}
	}
	return outline, nil
}

// lessonQuizState 返回课时 -> 启用测验ID，以及学生已通过或手动标记完成的测验
func (s *CourseService) lessonQuizState(studentID uint, lessons []model.Lesson) (map[uint][]uint, map[uint]bool, error) {
	lessonIDs := make([]uint, 0, len(lessons))
	for _, l := range lessons {
		lessonIDs = append(lessonIDs, l.ID)
	}
	quizzes, err := s.QuizRepo.ListActiveByLessons(lessonIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list lesson quizzes: %w", err)
	}

	byLesson := make(map[uint][]uint)
	quizIDs := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		if q.LessonID == nil {
			continue
		}
		byLesson[*q.LessonID] = append(byLesson[*q.LessonID], q.ID)
		quizIDs = append(quizIDs, q.ID)
	}

	done, err := s.QuizRepo.PassedQuizIDs(studentID, quizIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("load passed quizzes: %w", err)
	}
	marked, err := s.QuizRepo.CompletedQuizIDs(studentID, quizIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("load marked quizzes: %w", err)
	}
	for id := range marked {
		done[id] = true
	}
	return byLesson, done, nil
}
