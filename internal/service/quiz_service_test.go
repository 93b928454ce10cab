package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestIsAnswerCorrect(t *testing.T) {
	mc := &model.QuizQuestion{
		Type:          model.MultipleChoice,
		Options:       datatypes.NewJSONSlice([]string{"Paris", "London", "Berlin"}),
		CorrectAnswer: "Paris",
	}
	mcLetter := &model.QuizQuestion{
		Type:          model.MultipleChoice,
		Options:       datatypes.NewJSONSlice([]string{"goroutine", "thread", "process"}),
		CorrectAnswer: "A",
	}
	mcSingleLetter := &model.QuizQuestion{
		Type:          model.MultipleChoice,
		Options:       datatypes.NewJSONSlice([]string{"C", "Go", "Rust"}),
		CorrectAnswer: "Rust",
	}
	tf := &model.QuizQuestion{Type: model.TrueFalse, CorrectAnswer: "true"}
	sa := &model.QuizQuestion{Type: model.ShortAnswer, CorrectAnswer: "Channel"}

	cases := []struct {
		name string
		q    *model.QuizQuestion
		ans  string
		want bool
	}{
		{"text answer", mc, "Paris", true},
		{"text answer case and spaces", mc, "  pARIS ", true},
		{"letter for text key", mc, "A", true},
		{"lowercase letter", mc, "a", true},
		{"wrong letter", mc, "B", false},
		{"wrong text", mc, "Berlin", false},
		{"letter out of range", mc, "Z", false},
		{"text for letter key", mcLetter, "Goroutine", true},
		{"letter for letter key", mcLetter, "a", true},
		{"wrong text for letter key", mcLetter, "thread", false},
		{"single letter option text", mcSingleLetter, "C", false},
		{"letter label beyond single letter option", mcSingleLetter, "b", false},
		{"correct text with single letter options", mcSingleLetter, "rust", true},
		{"true false", tf, "True", true},
		{"true false wrong", tf, "false", false},
		{"short answer", sa, " channel ", true},
		{"short answer letter is not special", sa, "A", false},
		{"empty", mc, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAnswerCorrect(tc.q, tc.ans))
		})
	}
}

func TestScoreAnswers(t *testing.T) {
	questions := []model.QuizQuestion{
		{BaseModel: model.BaseModel{ID: 1}, Type: model.TrueFalse, CorrectAnswer: "true", Points: 1},
		{BaseModel: model.BaseModel{ID: 2}, Type: model.ShortAnswer, CorrectAnswer: "defer", Points: 2},
	}
	assert.InDelta(t, 33.33, ScoreAnswers(questions, map[string]string{"1": "true"}), 0.001)
	assert.InDelta(t, 66.67, ScoreAnswers(questions, map[string]string{"2": "DEFER"}), 0.001)
	assert.InDelta(t, 100.0, ScoreAnswers(questions, map[string]string{"1": "true", "2": "defer"}), 0.001)
	assert.Zero(t, ScoreAnswers(nil, map[string]string{"1": "true"}))
}

// createQuiz 在课程上创建一个两道题、及格线 50 的测验
func createQuiz(t *testing.T, env *testEnv, lessonID *uint, maxAttempts int, timeLimit *int) *model.Quiz {
	t.Helper()
	f := env.f
	quiz, err := env.quiz.CreateQuiz(actorOf(f.Instructor), CreateQuizReq{
		CourseID:     f.Course.ID,
		LessonID:     lessonID,
		Title:        "小测",
		PassingScore: 50,
		MaxAttempts:  maxAttempts,
		TimeLimit:    timeLimit,
		Questions: []QuizQuestionReq{
			{Type: model.MultipleChoice, Question: "Go 的并发原语？", Options: []string{"goroutine", "fiber"}, CorrectAnswer: "goroutine", Points: 1},
			{Type: model.TrueFalse, Question: "slice 是引用类型？", CorrectAnswer: "true", Points: 1},
		},
	})
	require.NoError(t, err)
	return quiz
}

func answersFor(quiz *model.Quiz, mc, tf string) map[string]string {
	return map[string]string{
		fmt.Sprint(quiz.Questions[0].ID): mc,
		fmt.Sprint(quiz.Questions[1].ID): tf,
	}
}

func TestQuizAttemptLifecycle(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	student := actorOf(f.Student)
	limit := 30
	quiz := createQuiz(t, env, nil, 2, &limit)

	_, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	started, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.False(t, started.Resumed)
	assert.Equal(t, 1, started.Attempt.AttemptNumber)
	require.NotNil(t, started.Deadline)

	env.advance(5 * time.Minute)
	again, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.True(t, again.Resumed, "open attempt within the time limit is reused")
	assert.Equal(t, started.Attempt.ID, again.Attempt.ID)

	// 超过限时后放弃的作答不计入次数，重新开始得到新的作答
	env.advance(time.Hour)
	fresh, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Resumed)
	assert.Equal(t, 2, fresh.Attempt.AttemptNumber)

	abandoned, err := env.quiz.CountAbandonedAttempts()
	require.NoError(t, err)
	assert.Equal(t, 1, abandoned)

	full, err := env.quiz.QuizRepo.FindWithQuestions(quiz.ID)
	require.NoError(t, err)

	attempt, err := env.quiz.SubmitAttempt(ctx, student, quiz.ID, fresh.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(full, "A", "false")})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, attempt.Score, 0.001)
	assert.True(t, attempt.IsPassed)
	require.NotNil(t, attempt.CompletedAt)
	assert.Contains(t, env.events.keys(), EventQuizAttemptCompleted)

	_, err = env.quiz.SubmitAttempt(ctx, student, quiz.ID, fresh.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(full, "A", "true")})
	assert.ErrorIs(t, err, util.ErrAttemptClosed)

	_, err = env.quiz.SubmitAttempt(ctx, actorOf(f.Student2), quiz.ID, started.Attempt.ID, SubmitAttemptRequest{Answers: map[string]string{}})
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	// 只提交了一次，还可以再作答
	ok, err := env.quiz.CanStudentTakeQuiz(quiz, f.Student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	third, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Attempt.AttemptNumber)
	_, err = env.quiz.SubmitAttempt(ctx, student, quiz.ID, third.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(full, "goroutine", "TRUE")})
	require.NoError(t, err)

	ok, err = env.quiz.CanStudentTakeQuiz(quiz, f.Student.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.quiz.StartAttempt(ctx, student, quiz.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)
}

func TestSubmitStaleAttemptRespectsLimit(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	student := actorOf(f.Student)
	limit := 10
	quiz := createQuiz(t, env, nil, 1, &limit)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	first, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	env.advance(time.Hour)
	second, err := env.quiz.StartAttempt(ctx, student, quiz.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Attempt.ID, second.Attempt.ID)

	full, err := env.quiz.QuizRepo.FindWithQuestions(quiz.ID)
	require.NoError(t, err)
	_, err = env.quiz.SubmitAttempt(ctx, student, quiz.ID, second.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(full, "A", "false")})
	require.NoError(t, err)

	_, err = env.quiz.SubmitAttempt(ctx, student, quiz.ID, first.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(full, "A", "true")})
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)

	completed, err := env.quizRepo.CountCompletedAttempts(quiz.ID, f.Student.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, completed)

	_, err = env.quiz.StartAttempt(ctx, student, quiz.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)
}

func TestCanStudentTakeQuizIgnoresAbandoned(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	quiz := createQuiz(t, env, nil, 1, nil)
	done := env.clock

	require.NoError(t, env.quizRepo.CreateAttempt(&model.QuizAttempt{QuizID: quiz.ID, StudentID: f.Student.ID, AttemptNumber: 1, StartedAt: done}))
	require.NoError(t, env.quizRepo.CreateAttempt(&model.QuizAttempt{QuizID: quiz.ID, StudentID: f.Student.ID, AttemptNumber: 2, StartedAt: done}))

	ok, err := env.quiz.CanStudentTakeQuiz(quiz, f.Student.ID)
	require.NoError(t, err)
	assert.True(t, ok, "unsubmitted attempts do not use up the limit")

	require.NoError(t, env.quizRepo.CreateAttempt(&model.QuizAttempt{QuizID: quiz.ID, StudentID: f.Student.ID, AttemptNumber: 3, StartedAt: done, CompletedAt: &done}))
	ok, err = env.quiz.CanStudentTakeQuiz(quiz, f.Student.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	quiz.IsActive = false
	ok, err = env.quiz.CanStudentTakeQuiz(quiz, f.Student2.ID)
	require.NoError(t, err)
	assert.False(t, ok, "inactive quizzes cannot be taken")
}

func TestStudentQuizViewHidesAnswers(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	quiz := createQuiz(t, env, nil, 3, nil)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	view, err := env.quiz.GetQuizForStudent(actorOf(f.Student), quiz.ID)
	require.NoError(t, err)
	assert.True(t, view.CanTake)
	require.Len(t, view.Questions, 2)
	assert.Equal(t, []string{"goroutine", "fiber"}, view.Questions[0].Options)
	assert.Empty(t, view.Questions[1].Options)

	_, err = env.quiz.GetQuizForStudent(actorOf(f.Student2), quiz.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = env.quiz.GetQuizForStudent(actorOf(f.Student), 9999)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestUpdateQuizProgress(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	student := actorOf(f.Student)
	quiz := createQuiz(t, env, nil, 3, nil)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	_, err := env.quiz.UpdateQuizProgress(student, QuizProgressRequest{QuizID: quiz.ID, Action: "explode"})
	assert.ErrorIs(t, err, util.ErrValidation)

	res, err := env.quiz.UpdateQuizProgress(student, QuizProgressRequest{QuizID: quiz.ID, Action: QuizActionGetStatus})
	require.NoError(t, err)
	assert.False(t, res.IsCompleted)
	require.NotNil(t, res.Progress)
	assert.Zero(t, *res.Progress)

	res, err = env.quiz.UpdateQuizProgress(student, QuizProgressRequest{QuizID: quiz.ID, Action: QuizActionMarkCompleted})
	require.NoError(t, err)
	assert.True(t, res.IsCompleted)
	assert.Nil(t, res.Progress)

	res, err = env.quiz.UpdateQuizProgress(student, QuizProgressRequest{QuizID: quiz.ID, Action: QuizActionGetStatus})
	require.NoError(t, err)
	assert.True(t, res.IsCompleted)

	res, err = env.quiz.UpdateQuizProgress(student, QuizProgressRequest{QuizID: quiz.ID, Action: QuizActionMarkIncomplete})
	require.NoError(t, err)
	assert.False(t, res.IsCompleted)

	var attempts int64
	require.NoError(t, f.DB.Model(&model.QuizAttempt{}).Count(&attempts).Error)
	assert.Zero(t, attempts, "marking never creates attempts")

	_, err = env.quiz.UpdateQuizProgress(actorOf(f.Student2), QuizProgressRequest{QuizID: quiz.ID, Action: QuizActionMarkCompleted})
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}

func TestInstructorQuizManagement(t *testing.T) {
	env := newTestEnv(t)
	f := env.f
	ctx := context.Background()
	quiz := createQuiz(t, env, &f.Lessons[0].ID, 3, nil)
	assert.True(t, quiz.IsActive)
	testutil.Enroll(t, f.DB, f.Student.ID, f.Course.ID)

	_, err := env.quiz.CreateQuiz(actorOf(f.Other), CreateQuizReq{CourseID: f.Course.ID, Title: "x", MaxAttempts: 1})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = env.quiz.CreateQuiz(actorOf(f.Instructor), CreateQuizReq{
		CourseID: f.Course.ID, Title: "bad", MaxAttempts: 1,
		Questions: []QuizQuestionReq{{Type: "essay", Question: "?", CorrectAnswer: "x"}},
	})
	assert.ErrorIs(t, err, util.ErrValidation)

	started, err := env.quiz.StartAttempt(ctx, actorOf(f.Student), quiz.ID)
	require.NoError(t, err)
	_, err = env.quiz.SubmitAttempt(ctx, actorOf(f.Student), quiz.ID, started.Attempt.ID, SubmitAttemptRequest{Answers: answersFor(quiz, "goroutine", "true")})
	require.NoError(t, err)

	attempts, err := env.quiz.ListAttempts(actorOf(f.Instructor), quiz.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.InDelta(t, 100.0, attempts[0].Score, 0.001)

	_, err = env.quiz.ListAttempts(actorOf(f.Other), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	// 删除题目不会重算已有分数
	require.NoError(t, env.quiz.DeleteQuestion(actorOf(f.Instructor), quiz.ID, quiz.Questions[1].ID))
	assert.ErrorIs(t, env.quiz.DeleteQuestion(actorOf(f.Instructor), quiz.ID, quiz.Questions[1].ID), util.ErrQuestionNotFound)
	attempts, err = env.quiz.ListAttempts(actorOf(f.Admin), quiz.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, attempts[0].Score, 0.001)

	_, err = env.quiz.DeleteAllAttempts(actorOf(f.Other), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	deleted, err := env.quiz.DeleteAllAttempts(actorOf(f.Instructor), quiz.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	restart, err := env.quiz.StartAttempt(ctx, actorOf(f.Student), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restart.Attempt.AttemptNumber, "numbering starts over after a purge")
}
