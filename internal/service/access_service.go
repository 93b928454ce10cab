package service

import (
	"errors"
	"fmt"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
)

// AccessService 判断用户能否访问课程或课时。
// 每次判断都会重新查询选课表，不做缓存。
type AccessService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
}

func NewAccessService(courseRepo *repository.CourseRepository, enrollmentRepo *repository.EnrollmentRepository) *AccessService {
	return &AccessService{CourseRepo: courseRepo, EnrollmentRepo: enrollmentRepo}
}

// CanAccessLesson 管理员、课程所有者、预览课时、已选课学生可以访问
func (s *AccessService) CanAccessLesson(actor Actor, lesson *model.Lesson) (bool, error) {
	if !actor.Authenticated() || lesson == nil {
		return false, nil
	}
	switch actor.Role {
	case model.Admin:
		return true, nil
	case model.Instructor:
		course, err := s.courseOf(lesson)
		if err != nil {
			return false, err
		}
		return actor.Owns(course), nil
	case model.Student:
		if lesson.IsPreview {
			return true, nil
		}
		return s.EnrollmentRepo.Exists(actor.UserID, lesson.CourseID)
	}
	return false, nil
}

// CanAccessCourse 与 CanAccessLesson 相同，但预览课时不授予访问权
func (s *AccessService) CanAccessCourse(actor Actor, course *model.Course) (bool, error) {
	if !actor.Authenticated() || course == nil {
		return false, nil
	}
	switch actor.Role {
	case model.Admin:
		return true, nil
	case model.Instructor:
		return actor.Owns(course), nil
	case model.Student:
		return s.EnrollmentRepo.Exists(actor.UserID, course.ID)
	}
	return false, nil
}

// LoadLesson 查询课时，非管理者看不到未发布的课时或课程
func (s *AccessService) LoadLesson(actor Actor, lessonID uint) (*model.Lesson, error) {
	lesson, err := s.CourseRepo.FindLessonByID(lessonID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lesson %d: %w", lessonID, err)
	}
	if lesson.Course == nil {
		return nil, util.ErrLessonNotFound
	}
	if !actor.CanManage(lesson.Course) && (!lesson.IsPublished || !lesson.Course.IsPublished) {
		return nil, util.ErrLessonNotFound
	}
	return lesson, nil
}

// LoadCourse 查询课程，非管理者看不到未发布的课程
func (s *AccessService) LoadCourse(actor Actor, courseID uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(courseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course %d: %w", courseID, err)
	}
	if !actor.CanManage(course) && !course.IsPublished {
		return nil, util.ErrCourseNotFound
	}
	return course, nil
}

// RequireLesson 查询课时并校验访问权限
func (s *AccessService) RequireLesson(actor Actor, lessonID uint) (*model.Lesson, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	lesson, err := s.LoadLesson(actor, lessonID)
	if err != nil {
		return nil, err
	}
	ok, err := s.CanAccessLesson(actor, lesson)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.denied(actor)
	}
	return lesson, nil
}

// RequireCourse 查询课程并校验访问权限
func (s *AccessService) RequireCourse(actor Actor, courseID uint) (*model.Course, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	course, err := s.LoadCourse(actor, courseID)
	if err != nil {
		return nil, err
	}
	ok, err := s.CanAccessCourse(actor, course)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.denied(actor)
	}
	return course, nil
}

func (s *AccessService) denied(actor Actor) error {
	if actor.IsStudent() {
		return util.ErrNotEnrolled
	}
	return util.ErrPermissionDenied
}

func (s *AccessService) courseOf(lesson *model.Lesson) (*model.Course, error) {
	if lesson.Course != nil {
		return lesson.Course, nil
	}
	course, err := s.CourseRepo.FindByID(lesson.CourseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	return course, err
}
