package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	QuizActionMarkCompleted  = "mark_completed"
	QuizActionMarkIncomplete = "mark_incomplete"
	QuizActionGetStatus      = "get_status"
)

type QuizService struct {
	Access         *AccessService
	QuizRepo       *repository.QuizRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Events         EventPublisher
	DB             *gorm.DB
	Now            func() time.Time
}

func NewQuizService(
	access *AccessService,
	quizRepo *repository.QuizRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	events EventPublisher,
	db *gorm.DB,
) *QuizService {
	return &QuizService{
		Access:         access,
		QuizRepo:       quizRepo,
		EnrollmentRepo: enrollmentRepo,
		Events:         events,
		DB:             db,
		Now:            time.Now,
	}
}

// CanStudentTakeQuiz 测验启用且已提交次数小于上限。
// 未提交（completed_at 为空）的作答不占用次数。
func (s *QuizService) CanStudentTakeQuiz(quiz *model.Quiz, studentID uint) (bool, error) {
	return canTakeQuiz(s.QuizRepo, quiz, studentID)
}

func canTakeQuiz(repo *repository.QuizRepository, quiz *model.Quiz, studentID uint) (bool, error) {
	if !quiz.IsActive {
		return false, nil
	}
	completed, err := repo.CountCompletedAttempts(quiz.ID, studentID)
	if err != nil {
		return false, err
	}
	return completed < int64(quiz.MaxAttempts), nil
}

// ---- 评分 ----

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// optionIndex 把字母标签（A/B/C…）或选项文本解析为选项下标，无法解析时返回 -1
func optionIndex(options []string, answer string) int {
	a := normalizeAnswer(answer)
	// 选项文本优先，单字母选项（如 "C"）不会被当成标签
	for i, opt := range options {
		if normalizeAnswer(opt) == a {
			return i
		}
	}
	if len(a) == 1 && a[0] >= 'a' && a[0] <= 'z' {
		if idx := int(a[0] - 'a'); idx < len(options) {
			return idx
		}
	}
	return -1
}

// IsAnswerCorrect 单选题接受选项文本或字母标签；判断题、简答题忽略大小写和首尾空格
func IsAnswerCorrect(q *model.QuizQuestion, answer string) bool {
	given := normalizeAnswer(answer)
	if given == "" {
		return false
	}
	expected := normalizeAnswer(q.CorrectAnswer)
	if given == expected {
		return true
	}
	if q.Type != model.MultipleChoice {
		return false
	}
	gi := optionIndex(q.Options, given)
	return gi >= 0 && gi == optionIndex(q.Options, expected)
}

// ScoreAnswers 得分 = 答对题目分值之和 / 全部分值之和 × 100
func ScoreAnswers(questions []model.QuizQuestion, answers map[string]string) float64 {
	var earned, total float64
	for i := range questions {
		q := &questions[i]
		total += q.Points
		if IsAnswerCorrect(q, answers[fmt.Sprint(q.ID)]) {
			earned += q.Points
		}
	}
	return util.Percent(earned, total)
}

// ---- 学生端 ----

type StudentQuestion struct {
	ID            uint               `json:"id"`
	Type          model.QuestionType `json:"type"`
	Question      string             `json:"question"`
	Options       []string           `json:"options,omitempty"`
	Points        float64            `json:"points"`
	QuestionOrder int                `json:"questionOrder"`
}

type QuizView struct {
	ID                uint                `json:"id"`
	CourseID          uint                `json:"courseId"`
	LessonID          *uint               `json:"lessonId"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	PassingScore      float64             `json:"passingScore"`
	MaxAttempts       int                 `json:"maxAttempts"`
	TimeLimit         *int                `json:"timeLimit"`
	IsActive          bool                `json:"isActive"`
	CanTake           bool                `json:"canTake"`
	CompletedAttempts int64               `json:"completedAttempts"`
	MarkedDone        bool                `json:"markedDone"`
	Questions         []StudentQuestion   `json:"questions"`
	Attempts          []model.QuizAttempt `json:"attempts"`
}

// loadQuiz 查询测验并校验课程访问权限
func (s *QuizService) loadQuiz(actor Actor, quizID uint, withQuestions bool) (*model.Quiz, *model.Course, error) {
	if !actor.Authenticated() {
		return nil, nil, util.ErrUnauthorized
	}
	var (
		quiz *model.Quiz
		err  error
	)
	if withQuestions {
		quiz, err = s.QuizRepo.FindWithQuestions(quizID)
	} else {
		quiz, err = s.QuizRepo.FindByID(quizID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, util.ErrQuizNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load quiz %d: %w", quizID, err)
	}

	course, err := s.Access.RequireCourse(actor, quiz.CourseID)
	if errors.Is(err, util.ErrCourseNotFound) {
		return nil, nil, util.ErrQuizNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return quiz, course, nil
}

func (s *QuizService) GetQuizForStudent(actor Actor, quizID uint) (*QuizView, error) {
	quiz, _, err := s.loadQuiz(actor, quizID, true)
	if err != nil {
		return nil, err
	}

	view := &QuizView{
		ID:           quiz.ID,
		CourseID:     quiz.CourseID,
		LessonID:     quiz.LessonID,
		Title:        quiz.Title,
		Description:  quiz.Description,
		PassingScore: quiz.PassingScore,
		MaxAttempts:  quiz.MaxAttempts,
		TimeLimit:    quiz.TimeLimit,
		IsActive:     quiz.IsActive,
		Questions:    make([]StudentQuestion, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		view.Questions = append(view.Questions, StudentQuestion{
			ID:            q.ID,
			Type:          q.Type,
			Question:      q.Question,
			Options:       q.Options,
			Points:        q.Points,
			QuestionOrder: q.QuestionOrder,
		})
	}

	if view.CanTake, err = s.CanStudentTakeQuiz(quiz, actor.UserID); err != nil {
		return nil, fmt.Errorf("check attempts: %w", err)
	}
	if view.CompletedAttempts, err = s.QuizRepo.CountCompletedAttempts(quiz.ID, actor.UserID); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if view.Attempts, err = s.QuizRepo.ListStudentAttempts(quiz.ID, actor.UserID); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	view.MarkedDone, err = s.markedDone(actor.UserID, quiz.ID)
	if err != nil {
		return nil, err
	}
	return view, nil
}

type StartAttemptResult struct {
	Attempt  *model.QuizAttempt `json:"attempt"`
	Resumed  bool               `json:"resumed"`
	Deadline *time.Time         `json:"deadline,omitempty"`
}

// StartAttempt 若存在未超时的进行中作答则继续，否则新建作答
func (s *QuizService) StartAttempt(ctx context.Context, actor Actor, quizID uint) (*StartAttemptResult, error) {
	quiz, _, err := s.loadQuiz(actor, quizID, false)
	if err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students can take quizzes", util.ErrPermissionDenied)
	}

	now := s.Now()
	result := &StartAttemptResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuizRepo.WithTx(tx)

		ok, err := canTakeQuiz(repo, quiz, actor.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrQuizNotAvailable
		}

		open, err := repo.FindLatestOpenAttempt(quiz.ID, actor.UserID)
		if err == nil {
			deadline, limited := quiz.Deadline(open.StartedAt)
			if !limited || now.Before(deadline) {
				result.Attempt = open
				result.Resumed = true
				return nil
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		total, err := repo.CountAttempts(quiz.ID, actor.UserID)
		if err != nil {
			return err
		}
		attempt := &model.QuizAttempt{
			QuizID:        quiz.ID,
			StudentID:     actor.UserID,
			AttemptNumber: int(total) + 1,
			StartedAt:     now,
		}
		if err := repo.CreateAttempt(attempt); err != nil {
			return err
		}
		result.Attempt = attempt
		return nil
	})
	if errors.Is(err, util.ErrQuizNotAvailable) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}

	if deadline, limited := quiz.Deadline(result.Attempt.StartedAt); limited {
		result.Deadline = &deadline
	}
	return result, nil
}

type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// SubmitAttempt 评分并结束作答
func (s *QuizService) SubmitAttempt(ctx context.Context, actor Actor, quizID, attemptID uint, req SubmitAttemptRequest) (*model.QuizAttempt, error) {
	quiz, _, err := s.loadQuiz(actor, quizID, true)
	if err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students can take quizzes", util.ErrPermissionDenied)
	}

	now := s.Now()
	var attempt *model.QuizAttempt
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuizRepo.WithTx(tx)

		var err error
		attempt, err = repo.FindAttemptForUpdate(quiz.ID, attemptID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		if err != nil {
			return err
		}
		if attempt.StudentID != actor.UserID {
			return util.ErrAttemptNotFound
		}
		if attempt.CompletedAt != nil {
			return util.ErrAttemptClosed
		}
		// 超时后新开的作答可能已提交，旧作答不能再占用额外次数
		completed, err := repo.CountCompletedAttempts(quiz.ID, actor.UserID)
		if err != nil {
			return err
		}
		if completed >= int64(quiz.MaxAttempts) {
			return util.ErrQuizNotAvailable
		}

		answers := make(datatypes.JSONMap, len(req.Answers))
		for k, v := range req.Answers {
			answers[k] = v
		}
		attempt.Answers = answers
		attempt.Score = ScoreAnswers(quiz.Questions, req.Answers)
		attempt.IsPassed = attempt.Score >= quiz.PassingScore
		attempt.CompletedAt = &now
		return repo.SaveAttempt(attempt)
	})
	if err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) || errors.Is(err, util.ErrAttemptClosed) ||
			errors.Is(err, util.ErrQuizNotAvailable) {
			return nil, err
		}
		logger.Log.Error("submit quiz attempt failed",
			zap.Uint("quizID", quizID),
			zap.Uint("attemptID", attemptID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	outcome := "failed"
	if attempt.IsPassed {
		outcome = "passed"
	}
	monitoring.QuizAttemptsCompleted.WithLabelValues(outcome).Inc()

	publish(ctx, s.Events, EventQuizAttemptCompleted, QuizAttemptCompletedEvent{
		AttemptID: attempt.ID,
		QuizID:    quiz.ID,
		StudentID: actor.UserID,
		Score:     attempt.Score,
		IsPassed:  attempt.IsPassed,
	})
	return attempt, nil
}

// ---- 手动完成标记 ----

type QuizProgressRequest struct {
	QuizID uint   `json:"quiz_id" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type QuizProgressResult struct {
	IsCompleted bool
	Progress    *float64
}

// UpdateQuizProgress 手动标记/取消/查询测验完成状态，不会创建或修改作答记录
func (s *QuizService) UpdateQuizProgress(actor Actor, req QuizProgressRequest) (*QuizProgressResult, error) {
	switch req.Action {
	case QuizActionMarkCompleted, QuizActionMarkIncomplete, QuizActionGetStatus:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", util.ErrValidation, req.Action)
	}

	quiz, _, err := s.loadQuiz(actor, req.QuizID, false)
	if err != nil {
		return nil, err
	}

	completion, err := s.QuizRepo.FindCompletion(actor.UserID, quiz.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		completion = &model.QuizCompletion{StudentID: actor.UserID, QuizID: quiz.ID}
	} else if err != nil {
		return nil, fmt.Errorf("load quiz completion: %w", err)
	}

	result := &QuizProgressResult{}
	switch req.Action {
	case QuizActionMarkCompleted:
		now := s.Now()
		completion.IsCompleted = true
		completion.CompletedAt = &now
		if err := s.QuizRepo.SaveCompletion(completion); err != nil {
			return nil, fmt.Errorf("save quiz completion: %w", err)
		}
	case QuizActionMarkIncomplete:
		completion.IsCompleted = false
		completion.CompletedAt = nil
		if completion.ID != 0 {
			if err := s.QuizRepo.SaveCompletion(completion); err != nil {
				return nil, fmt.Errorf("save quiz completion: %w", err)
			}
		}
	case QuizActionGetStatus:
		enrollment, err := s.EnrollmentRepo.Find(actor.UserID, quiz.CourseID)
		if err == nil {
			p := enrollment.ProgressPercentage
			result.Progress = &p
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
	}
	result.IsCompleted = completion.IsCompleted
	return result, nil
}

func (s *QuizService) markedDone(studentID, quizID uint) (bool, error) {
	completion, err := s.QuizRepo.FindCompletion(studentID, quizID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load quiz completion: %w", err)
	}
	return completion.IsCompleted, nil
}

// ---- 讲师端 ----

type QuizQuestionReq struct {
	Type          model.QuestionType `json:"type" binding:"required"`
	Question      string             `json:"question" binding:"required"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correctAnswer" binding:"required"`
	Points        float64            `json:"points" binding:"gte=0"`
	QuestionOrder int                `json:"questionOrder"`
}

type CreateQuizReq struct {
	CourseID     uint              `json:"courseId" binding:"required"`
	LessonID     *uint             `json:"lessonId"`
	Title        string            `json:"title" binding:"required"`
	Description  string            `json:"description"`
	PassingScore float64           `json:"passingScore" binding:"gte=0,lte=100"`
	MaxAttempts  int               `json:"maxAttempts" binding:"gte=1"`
	TimeLimit    *int              `json:"timeLimit"`
	IsActive     *bool             `json:"isActive"`
	Questions    []QuizQuestionReq `json:"questions" binding:"dive"`
}

func (s *QuizService) CreateQuiz(actor Actor, req CreateQuizReq) (*model.Quiz, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	course, err := s.Access.LoadCourse(actor, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(course) {
		return nil, util.ErrPermissionDenied
	}
	if req.LessonID != nil {
		lesson, err := s.Access.LoadLesson(actor, *req.LessonID)
		if err != nil {
			return nil, err
		}
		if lesson.CourseID != course.ID {
			return nil, fmt.Errorf("%w: lesson does not belong to course", util.ErrValidation)
		}
	}
	if req.TimeLimit != nil && *req.TimeLimit <= 0 {
		req.TimeLimit = nil
	}
	// 未填写及格线时与列默认值保持一致
	if req.PassingScore == 0 {
		req.PassingScore = 70
	}

	quiz := &model.Quiz{
		CourseID:     course.ID,
		LessonID:     req.LessonID,
		Title:        req.Title,
		Description:  req.Description,
		PassingScore: req.PassingScore,
		MaxAttempts:  req.MaxAttempts,
		TimeLimit:    req.TimeLimit,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	for i, qr := range req.Questions {
		if !qr.Type.Valid() {
			return nil, fmt.Errorf("%w: question %d has unknown type %q", util.ErrValidation, i+1, qr.Type)
		}
		if qr.Type == model.MultipleChoice && len(qr.Options) < 2 {
			return nil, fmt.Errorf("%w: question %d needs at least two options", util.ErrValidation, i+1)
		}
		q := model.QuizQuestion{
			Type:          qr.Type,
			Question:      qr.Question,
			CorrectAnswer: qr.CorrectAnswer,
			Points:        qr.Points,
			QuestionOrder: qr.QuestionOrder,
		}
		if qr.Type == model.MultipleChoice {
			q.Options = datatypes.NewJSONSlice(qr.Options)
		}
		if q.Points == 0 {
			q.Points = 1
		}
		if q.QuestionOrder == 0 {
			q.QuestionOrder = i + 1
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	if err := s.QuizRepo.Create(quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// manageableQuiz 测验所属课程的讲师或管理员
func (s *QuizService) manageableQuiz(actor Actor, quizID uint) (*model.Quiz, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	quiz, err := s.QuizRepo.FindByID(quizID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz %d: %w", quizID, err)
	}
	course, err := s.Access.CourseRepo.FindByID(quiz.CourseID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if !actor.CanManage(course) {
		return nil, util.ErrPermissionDenied
	}
	return quiz, nil
}

// DeleteQuestion 删除题目，已有作答的分数保持不变
func (s *QuizService) DeleteQuestion(actor Actor, quizID, questionID uint) error {
	quiz, err := s.manageableQuiz(actor, quizID)
	if err != nil {
		return err
	}
	if _, err := s.QuizRepo.FindQuestion(quiz.ID, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrQuestionNotFound
		}
		return fmt.Errorf("load question: %w", err)
	}
	return s.QuizRepo.DeleteQuestion(questionID)
}

// DeleteAllAttempts 不可恢复地清空测验的全部作答，学生可从零开始重新作答
func (s *QuizService) DeleteAllAttempts(actor Actor, quizID uint) (int64, error) {
	quiz, err := s.manageableQuiz(actor, quizID)
	if err != nil {
		return 0, err
	}
	deleted, err := s.QuizRepo.DeleteAllAttempts(quiz.ID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	logger.Log.Info("quiz attempts purged",
		zap.Uint("quizID", quiz.ID),
		zap.Uint("by", actor.UserID),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (s *QuizService) ListAttempts(actor Actor, quizID uint) ([]model.QuizAttempt, error) {
	quiz, err := s.manageableQuiz(actor, quizID)
	if err != nil {
		return nil, err
	}
	return s.QuizRepo.ListAttempts(quiz.ID)
}

// CountAbandonedAttempts 统计已超过限时仍未提交的作答，只读不改
func (s *QuizService) CountAbandonedAttempts() (int, error) {
	rows, err := s.QuizRepo.ListOpenTimedAttempts()
	if err != nil {
		return 0, err
	}
	now := s.Now()
	count := 0
	for _, r := range rows {
		if now.After(r.StartedAt.Add(time.Duration(r.TimeLimit) * time.Minute)) {
			count++
		}
	}
	return count, nil
}
