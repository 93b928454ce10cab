package controller

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DownloadController struct {
	DeliveryService *service.DeliveryService
}

func NewDownloadController(deliveryService *service.DeliveryService) *DownloadController {
	return &DownloadController{DeliveryService: deliveryService}
}

// Download godoc
// @Summary 下载课时附件或视频
// @Description 支持单段 Range 请求；外部视频地址直接跳转
// @Tags 文件
// @Produce octet-stream
// @Security BearerAuth
// @Param type query string false "lesson 或 video" default(lesson)
// @Param lesson_id query int true "课时ID"
// @Param file query string false "附件文件名"
// @Param disposition query string false "attachment 或 inline"
// @Param Range header string false "bytes=start-end"
// @Success 200 {file} file
// @Success 206 {file} file
// @Success 302 "外部视频地址"
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 416 {object} util.Response
// @Router /download [get]
func (c *DownloadController) Download(ctx *gin.Context) {
	var req service.DownloadRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	d, err := c.DeliveryService.Prepare(ctx.Request.Context(), middleware.CurrentActor(ctx), req, ctx.GetHeader("Range"))
	if err != nil {
		if errors.Is(err, util.ErrRangeNotSatisfiable) && d != nil {
			ctx.Header("Content-Range", util.UnsatisfiedRange(d.Size))
		}
		util.HandleError(ctx, err)
		return
	}

	if d.RedirectURL != "" {
		ctx.Redirect(http.StatusFound, d.RedirectURL)
		return
	}

	h := ctx.Writer.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Length", strconv.FormatInt(d.ContentLength(), 10))
	h.Set("Content-Disposition", mime.FormatMediaType(d.Disposition, map[string]string{"filename": d.Filename}))

	status := http.StatusOK
	if d.Range != nil {
		status = http.StatusPartialContent
		h.Set("Content-Range", d.Range.ContentRange(d.Size))
	}
	ctx.Status(status)

	written, err := c.DeliveryService.Stream(ctx.Writer, d)
	if err != nil {
		logger.Log.Warn("file transfer aborted",
			zap.Uint("lessonID", req.LessonID),
			zap.String("file", d.Filename),
			zap.Int64("written", written),
			zap.Int64("expected", d.ContentLength()),
			zap.Error(err),
		)
	}
}
