package controller

import (
	"net/http"

	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// UpdateLessonProgress godoc
// @Summary 上报课时进度
// @Description 记录学习时长和播放位置；is_completed 标记完成，force_update 取消完成
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.ProgressUpdate true "进度信息"
// @Success 200 {object} object "{success, message, is_completed}"
// @Failure 403 {object} util.Response "未选课"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /update-lesson-progress [post]
func (c *ProgressController) UpdateLessonProgress(ctx *gin.Context) {
	var req service.ProgressUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ProgressService.RecordProgress(ctx.Request.Context(), middleware.CurrentActor(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      result.Message,
		"is_completed": result.IsCompleted,
	})
}
