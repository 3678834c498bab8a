package handlers

import (
	"net/http"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/middleware"
	"huixiang/internal/utils"

	"github.com/gin-gonic/gin"
)

// OK 统一的成功响应，obj 中的字段平铺到顶层
func OK(c *gin.Context, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	obj["success"] = true
	c.JSON(http.StatusOK, obj)
}

// Fail 按错误类别返回状态码和稳定的 code，StoreError 只记录日志不外泄
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore {
		logger.For(c).WithError(err).Error("store error")
	}
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   apperr.PublicMessage(err),
		"code":    kind.String(),
	})
}

// BadRequest 请求体无法解析
func BadRequest(c *gin.Context, msg string) {
	Fail(c, apperr.Validation(msg))
}

func current(c *gin.Context) identity.Identity {
	return middleware.Current(c)
}

// queryInt 读取整数参数并限制范围
func queryInt(c *gin.Context, name string, fallback, lo, hi int) int {
	return utils.Clamp(utils.StringToInt(c.Query(name), fallback), lo, hi)
}
