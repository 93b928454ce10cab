package controller

import (
	"strconv"

	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// idParam 解析路径中的正整数ID，失败时直接返回 400
func idParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
