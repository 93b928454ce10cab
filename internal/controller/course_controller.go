package controller

import (
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService   *service.CourseService
	ProgressService *service.ProgressService
}

func NewCourseController(courseService *service.CourseService, progressService *service.ProgressService) *CourseController {
	return &CourseController{CourseService: courseService, ProgressService: progressService}
}

// Enroll godoc
// @Summary 选课
// @Description 免费课程直接选课；已选课或付费课程返回提示信息
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.EnrollResult}
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	courseID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	result, err := c.CourseService.Enroll(middleware.CurrentActor(ctx), courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetProgress godoc
// @Summary 课程学习进度
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Failure 403 {object} util.Response "未选课"
// @Router /api/courses/{id}/progress [get]
func (c *CourseController) GetProgress(ctx *gin.Context) {
	courseID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	progress, err := c.ProgressService.GetCourseProgress(middleware.CurrentActor(ctx), courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// GetOutline godoc
// @Summary 课程目录
// @Description 返回课时列表及完成、解锁状态
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseOutline}
// @Router /api/courses/{id}/outline [get]
func (c *CourseController) GetOutline(ctx *gin.Context) {
	courseID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	outline, err := c.CourseService.GetOutline(middleware.CurrentActor(ctx), courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, outline)
}

// GetLesson godoc
// @Summary 课时详情
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 403 {object} util.Response "无权访问"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/lessons/{id} [get]
func (c *CourseController) GetLesson(ctx *gin.Context) {
	lessonID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	lesson, err := c.CourseService.GetLesson(middleware.CurrentActor(ctx), lessonID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}
