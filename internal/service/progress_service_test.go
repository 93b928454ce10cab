package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func loadEnrollment(t *testing.T, env *testEnv, studentID uint) model.Enrollment {
	t.Helper()
	var e model.Enrollment
	require.NoError(t, env.f.DB.Where("student_id = ? AND course_id = ?", studentID, env.f.Course.ID).First(&e).Error)
	return e
}

func loadProgress(t *testing.T, env *testEnv, studentID, lessonID uint) model.LessonProgress {
	t.Helper()
	var p model.LessonProgress
	require.NoError(t, env.f.DB.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).First(&p).Error)
	return p
}

func TestRecordProgressCourseCompletion(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	student := actorOf(f.Student)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	complete := func(i int) *ProgressResult {
		res, err := env.progress.RecordProgress(ctx, student, ProgressUpdate{
			LessonID:    f.Lessons[i].ID,
			CourseID:    f.Course.ID,
			IsCompleted: true,
			TimeSpent:   60,
		})
		require.NoError(t, err)
		return res
	}

	complete(0)
	res := complete(1)
	assert.True(t, res.IsCompleted)
	assert.Equal(t, "Lesson marked as completed", res.Message)

	e := loadEnrollment(t, env, f.Student.ID)
	assert.InDelta(t, 50.0, e.ProgressPercentage, 0.001, "unpublished lessons are not counted")
	assert.False(t, e.IsCompleted)
	assert.Nil(t, e.CompletionDate)

	complete(2)
	res = complete(3)
	assert.True(t, res.CourseCompleted)

	e = loadEnrollment(t, env, f.Student.ID)
	assert.InDelta(t, 100.0, e.ProgressPercentage, 0.001)
	assert.True(t, e.IsCompleted)
	require.NotNil(t, e.CompletionDate)
	assert.Equal(t, []string{EventCourseCompleted}, env.events.keys())

	// 取消最后一课的完成状态
	env.advance(time.Hour)
	res, err := env.progress.RecordProgress(ctx, student, ProgressUpdate{
		LessonID:    f.Lessons[3].ID,
		CourseID:    f.Course.ID,
		ForceUpdate: true,
	})
	require.NoError(t, err)
	assert.False(t, res.IsCompleted)
	assert.Equal(t, "Lesson marked as incomplete", res.Message)

	e = loadEnrollment(t, env, f.Student.ID)
	assert.InDelta(t, 75.0, e.ProgressPercentage, 0.001)
	assert.False(t, e.IsCompleted)
	assert.Nil(t, e.CompletionDate)

	p := loadProgress(t, env, f.Student.ID, f.Lessons[3].ID)
	assert.False(t, p.IsCompleted)
	assert.Nil(t, p.CompletionDate)
}

func TestRecordProgressRollsBackOnDatabaseError(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	// 重算选课进度时写库失败
	require.NoError(t, f.DB.Callback().Update().Before("gorm:update").Register("test:fail_enrollment_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "enrollments" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := env.progress.RecordProgress(context.Background(), actorOf(f.Student), ProgressUpdate{
		LessonID:    f.Lessons[0].ID,
		CourseID:    f.Course.ID,
		IsCompleted: true,
		TimeSpent:   30,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, util.StatusFor(err))

	var count int64
	require.NoError(t, f.DB.Model(&model.LessonProgress{}).Where("student_id = ?", f.Student.ID).Count(&count).Error)
	assert.Zero(t, count, "lesson progress must not be committed without the enrollment")

	e := loadEnrollment(t, env, f.Student.ID)
	assert.Zero(t, e.ProgressPercentage)
	assert.False(t, e.IsCompleted)
	assert.Empty(t, env.events.keys())
}

func TestRecordProgressHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	student := actorOf(f.Student)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)
	lessonID := f.Lessons[1].ID

	_, err := env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: lessonID, IsCompleted: true, TimeSpent: 30, LastPosition: 300})
	require.NoError(t, err)
	first := loadProgress(t, env, f.Student.ID, lessonID)
	require.NotNil(t, first.CompletionDate)

	env.advance(10 * time.Minute)
	res, err := env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: lessonID, TimeSpent: 15, LastPosition: 120})
	require.NoError(t, err)
	assert.True(t, res.IsCompleted, "heartbeat keeps completion")
	assert.False(t, res.CompletionChanged)
	assert.Equal(t, "Progress saved", res.Message)

	_, err = env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: lessonID, TimeSpent: -50, LastPosition: 90})
	require.NoError(t, err)

	// 重复完成不会刷新完成时间
	_, err = env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: lessonID, IsCompleted: true})
	require.NoError(t, err)

	p := loadProgress(t, env, f.Student.ID, lessonID)
	assert.True(t, p.IsCompleted)
	assert.Equal(t, 45, p.TimeSpent, "negative deltas are ignored")
	assert.Equal(t, 0, p.LastPosition, "last report wins")
	require.NotNil(t, p.CompletionDate)
	assert.True(t, first.CompletionDate.Equal(*p.CompletionDate))
}

func TestRecordProgressRejects(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	student := actorOf(f.Student)

	_, err := env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: f.Lessons[0].ID, IsCompleted: true})
	assert.ErrorIs(t, err, util.ErrNotEnrolled, "preview access does not allow progress")

	_, err = env.progress.RecordProgress(ctx, Actor{}, ProgressUpdate{LessonID: f.Lessons[0].ID})
	assert.ErrorIs(t, err, util.ErrUnauthorized)

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	_, err = env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: f.Unpublished.ID, CourseID: f.Course.ID, IsCompleted: true})
	assert.ErrorIs(t, err, util.ErrLessonNotFound)

	_, err = env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: 9999, CourseID: f.Course.ID})
	assert.ErrorIs(t, err, util.ErrLessonNotFound)

	other := testutil.Course(t, f.DB, f.Instructor.ID, true, true, 0)
	testutil.Enroll(t, f.DB, f.Student.ID, other.ID)
	_, err = env.progress.RecordProgress(ctx, student, ProgressUpdate{LessonID: f.Lessons[1].ID, CourseID: other.ID})
	assert.ErrorIs(t, err, util.ErrLessonNotFound, "lesson must belong to the given course")

	var count int64
	require.NoError(t, f.DB.Model(&model.LessonProgress{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyProgress(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := &model.LessonProgress{}
	assert.False(t, ApplyProgress(p, ProgressUpdate{TimeSpent: 10}, now))
	assert.False(t, p.IsCompleted)

	assert.True(t, ApplyProgress(p, ProgressUpdate{IsCompleted: true}, now))
	assert.False(t, ApplyProgress(p, ProgressUpdate{}, now.Add(time.Hour)))
	assert.True(t, p.IsCompleted)
	assert.Equal(t, now, *p.CompletionDate)

	// is_completed 优先于 force_update
	assert.False(t, ApplyProgress(p, ProgressUpdate{IsCompleted: true, ForceUpdate: true}, now))
	assert.True(t, p.IsCompleted)

	assert.True(t, ApplyProgress(p, ProgressUpdate{ForceUpdate: true}, now))
	assert.False(t, p.IsCompleted)
	assert.Nil(t, p.CompletionDate)
	assert.Equal(t, 10, p.TimeSpent)
}

func TestApplyAggregate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		completed, total int64
		pct              float64
		done             bool
	}{
		{0, 0, 0, false},
		{1, 3, 33.33, false},
		{2, 3, 66.67, false},
		{3, 3, 100, true},
		{2, 4, 50, false},
	}
	for _, tc := range cases {
		e := &model.Enrollment{}
		ApplyAggregate(e, tc.completed, tc.total, now)
		assert.InDelta(t, tc.pct, e.ProgressPercentage, 0.001)
		assert.Equal(t, tc.done, e.IsCompleted)
		assert.Equal(t, tc.done, e.CompletionDate != nil, "completion date mirrors is_completed")
	}
}

func TestGetCourseProgress(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	student := actorOf(f.Student)

	_, err := env.progress.GetCourseProgress(student, f.Course.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)
	_, err = env.progress.RecordProgress(context.Background(), student, ProgressUpdate{LessonID: f.Lessons[2].ID, IsCompleted: true, TimeSpent: 42})
	require.NoError(t, err)

	view, err := env.progress.GetCourseProgress(student, f.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.TotalLessons)
	assert.Equal(t, 1, view.CompletedLessons)
	assert.InDelta(t, 25.0, view.ProgressPercentage, 0.001)
	require.Len(t, view.Lessons, 4)
	assert.True(t, view.Lessons[2].IsCompleted)
	assert.Equal(t, 42, view.Lessons[2].TimeSpent)
}
