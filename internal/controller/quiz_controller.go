package controller

import (
	"net/http"

	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// UpdateQuizProgress godoc
// @Summary 手动标记测验完成状态
// @Description action: mark_completed / mark_incomplete / get_status
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.QuizProgressRequest true "操作"
// @Success 200 {object} object "{success, is_completed, progress}"
// @Failure 400 {object} util.Response "未知操作"
// @Router /update-quiz-progress [post]
func (c *QuizController) UpdateQuizProgress(ctx *gin.Context) {
	var req service.QuizProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.QuizService.UpdateQuizProgress(middleware.CurrentActor(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	resp := gin.H{
		"success":      true,
		"is_completed": result.IsCompleted,
	}
	if result.Progress != nil {
		resp["progress"] = *result.Progress
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetQuiz godoc
// @Summary 测验详情
// @Description 学生视角，不含正确答案
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	view, err := c.QuizService.GetQuizForStudent(middleware.CurrentActor(ctx), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// StartAttempt godoc
// @Summary 开始作答
// @Description 存在未超时的进行中作答时直接返回该作答
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.StartAttemptResult}
// @Failure 403 {object} util.Response "测验未启用或次数已用完"
// @Router /api/quizzes/{id}/start [post]
func (c *QuizController) StartAttempt(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	result, err := c.QuizService.StartAttempt(ctx.Request.Context(), middleware.CurrentActor(ctx), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// SubmitAttempt godoc
// @Summary 提交作答
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param attemptId path int true "作答ID"
// @Param body body service.SubmitAttemptRequest true "答案，键为题目ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt}
// @Failure 409 {object} util.Response "作答已提交"
// @Router /api/quizzes/{id}/attempts/{attemptId}/submit [post]
func (c *QuizController) SubmitAttempt(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	attemptID, ok := idParam(ctx, "attemptId")
	if !ok {
		return
	}
	var req service.SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.QuizService.SubmitAttempt(ctx.Request.Context(), middleware.CurrentActor(ctx), quizID, attemptID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// CreateQuiz godoc
// @Summary 创建测验
// @Tags 讲师-测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateQuizReq true "测验及题目"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Router /api/instructor/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	var req service.CreateQuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.QuizService.CreateQuiz(middleware.CurrentActor(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// ListAttempts godoc
// @Summary 测验作答记录
// @Tags 讲师-测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=[]model.QuizAttempt}
// @Router /api/instructor/quizzes/{id}/attempts [get]
func (c *QuizController) ListAttempts(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	attempts, err := c.QuizService.ListAttempts(middleware.CurrentActor(ctx), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Description 已有作答的分数不会重新计算
// @Tags 讲师-测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/instructor/quizzes/{id}/questions/{questionId} [delete]
func (c *QuizController) DeleteQuestion(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := idParam(ctx, "questionId")
	if !ok {
		return
	}
	if err := c.QuizService.DeleteQuestion(middleware.CurrentActor(ctx), quizID, questionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DeleteAllAttempts godoc
// @Summary 清空测验作答
// @Description 不可恢复，学生可重新开始作答
// @Tags 讲师-测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=object}
// @Router /api/instructor/quizzes/{id}/attempts [delete]
func (c *QuizController) DeleteAllAttempts(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	deleted, err := c.QuizService.DeleteAllAttempts(middleware.CurrentActor(ctx), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": deleted})
}
