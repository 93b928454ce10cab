package service

import (
	"testing"

	"learnhub_backend/internal/testutil"
	"learnhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAccessLesson(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	preview, regular := &f.Lessons[0], &f.Lessons[1]
	preview.Course, regular.Course = &f.Course, &f.Course

	check := func(a Actor, lessonIdx int) bool {
		ok, err := env.access.CanAccessLesson(a, &f.Lessons[lessonIdx])
		require.NoError(t, err)
		return ok
	}

	assert.True(t, check(actorOf(f.Student), 0), "preview lesson is open to any student")
	assert.False(t, check(actorOf(f.Student), 1), "regular lesson requires enrollment")
	assert.True(t, check(actorOf(f.Admin), 1))
	assert.True(t, check(actorOf(f.Instructor), 1))
	assert.False(t, check(actorOf(f.Other), 1), "instructor of another course")
	assert.False(t, check(actorOf(f.Other), 0), "preview does not extend to other instructors")
	assert.False(t, check(Actor{}, 0), "unauthenticated")

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)
	assert.True(t, check(actorOf(f.Student), 1))
	assert.False(t, check(actorOf(f.Student2), 1))
}

func TestCanAccessCourseIgnoresPreview(t *testing.T) {
	env := newTestEnv(t)
	f := env.f

	ok, err := env.access.CanAccessCourse(actorOf(f.Student), &f.Course)
	require.NoError(t, err)
	assert.False(t, ok)

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)
	ok, err = env.access.CanAccessCourse(actorOf(f.Student), &f.Course)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.access.CanAccessCourse(actorOf(f.Other), &f.Course)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequireLessonErrors(t *testing.T) {
	env := newTestEnv(t)
	f := env.f

	_, err := env.access.RequireLesson(Actor{}, f.Lessons[1].ID)
	assert.ErrorIs(t, err, util.ErrUnauthorized)

	_, err = env.access.RequireLesson(actorOf(f.Student), f.Lessons[1].ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = env.access.RequireLesson(actorOf(f.Other), f.Lessons[1].ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = env.access.RequireLesson(actorOf(f.Student), 9999)
	assert.ErrorIs(t, err, util.ErrLessonNotFound)

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)
	_, err = env.access.RequireLesson(actorOf(f.Student), f.Unpublished.ID)
	assert.ErrorIs(t, err, util.ErrLessonNotFound, "drafts are hidden from students")

	lesson, err := env.access.RequireLesson(actorOf(f.Instructor), f.Unpublished.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Unpublished.ID, lesson.ID)
}

func TestRequireCourseHidesUnpublished(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	draft := testutil.Course(t, f.DB, f.Instructor.ID, false, true, 0)

	_, err := env.access.RequireCourse(actorOf(f.Student), draft.ID)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)

	_, err = env.access.RequireCourse(actorOf(f.Admin), draft.ID)
	assert.NoError(t, err)
}
