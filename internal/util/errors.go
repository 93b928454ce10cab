package util

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrValidation          = errors.New("validation failed")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailRegistered     = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrCourseNotFound      = errors.New("course not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrNotEnrolled         = errors.New("not enrolled in this course")
	ErrQuizNotFound        = errors.New("quiz not found")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrQuizNotAvailable    = errors.New("quiz is inactive or no attempts remaining")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptClosed       = errors.New("attempt already submitted")
	ErrFileNotFound        = errors.New("file not found")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
)
