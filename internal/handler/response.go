package handler

import (
	"errors"
	"net/http"

	"karrot_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseData 统一响应结构体
type ResponseData struct {
	Code int `json:"code"`           // 业务响应状态码
	Msg  any `json:"msg"`            // 提示信息
	Data any `json:"data,omitempty"` // 数据
}

// HandleSuccess 返回成功响应
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, ResponseData{
		Code: errorx.CodeSuccess,
		Msg:  "success",
		Data: data,
	})
}

// HandleError 通用错误处理方法
// errorx.CodeError 直接返回携带的错误码和消息，其余错误记录日志并返回 CodeServerBusy
func HandleError(c *gin.Context, err error) {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) && codeErr.Code != errorx.CodeDBError && codeErr.Code != errorx.CodeCacheError {
		c.JSON(statusOf(codeErr.Code), ResponseData{Code: codeErr.Code, Msg: codeErr.Msg})
		return
	}

	zap.L().Error("system error",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ResponseData{
		Code: errorx.ErrServerBusy.Code,
		Msg:  errorx.ErrServerBusy.Msg,
	})
}

// statusOf 业务码对应的 HTTP 状态
func statusOf(code int) int {
	switch code {
	case errorx.CodeInvalidParam, errorx.CodeValidation:
		return http.StatusBadRequest
	case errorx.CodeNotFound:
		return http.StatusNotFound
	case errorx.CodeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
