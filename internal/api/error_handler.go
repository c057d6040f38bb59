package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/integration"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/internal/utils"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/statemachine"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
	Data    interface{}
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				ErrorWithData(c, apiErr.Code, apiErr.Message, apiErr.Detail, apiErr.Data)
			} else {
				Error(c, http.StatusInternalServerError, "internal server error", err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// workflowStatus 工作流错误类型对应的 HTTP 状态码
var workflowStatus = map[statemachine.ErrorKind]int{
	statemachine.KindNoPendingStep:            http.StatusConflict,
	statemachine.KindNotAuthorized:            http.StatusForbidden,
	statemachine.KindMissingComplianceProgram: http.StatusUnprocessableEntity,
	statemachine.KindNonCompliantProgram:      http.StatusUnprocessableEntity,
	statemachine.KindDocumentsIncomplete:      http.StatusUnprocessableEntity,
	statemachine.KindInvalidResubmitState:     http.StatusConflict,
	statemachine.KindConcurrentModification:   http.StatusConflict,
	statemachine.KindInvalidTransition:        http.StatusConflict,
	statemachine.KindInvalidRejectionReason:   http.StatusBadRequest,
}

// ToAPIError 将服务层错误转换为 API 错误
func ToAPIError(err error, operation string) *APIError {
	var wfErr *statemachine.Error
	if errors.As(err, &wfErr) {
		code, ok := workflowStatus[wfErr.Kind]
		if !ok {
			code = http.StatusConflict
		}
		data := map[string]interface{}{"kind": wfErr.Kind}
		if wfErr.Level != "" {
			data["level"] = wfErr.Level
		}
		if len(wfErr.MissingDocuments) > 0 {
			data["missingDocuments"] = wfErr.MissingDocuments
		}
		return &APIError{Code: code, Message: string(wfErr.Kind), Detail: wfErr.Message, Data: data}
	}

	var validationErr *utils.ValidationError
	var statusErr *client.StatusError
	switch {
	case errors.Is(err, repository.ErrProjectNotFound):
		return WrapError(err, http.StatusNotFound, "project not found")
	case errors.Is(err, service.ErrActorRequired):
		return WrapError(err, http.StatusUnauthorized, "actor is required")
	case errors.Is(err, service.ErrUnknownActor):
		return WrapError(err, http.StatusForbidden, "unknown actor")
	case errors.As(err, &validationErr):
		return &APIError{Code: http.StatusBadRequest, Message: "invalid request", Detail: err.Error(), Data: map[string]string{"code": validationErr.Code}}
	case errors.Is(err, policy.ErrInvalidScope), errors.Is(err, policy.ErrNegativeBudget),
		errors.Is(err, integration.ErrDocumentNotRequired):
		return WrapError(err, http.StatusBadRequest, "invalid request")
	case errors.Is(err, policy.ErrNoMatchingRule):
		return WrapError(err, http.StatusUnprocessableEntity, "no routing rule matches project")
	case errors.As(err, &statusErr):
		return WrapError(err, http.StatusBadGateway, "collaborator service failed")
	}

	return WrapError(err, http.StatusInternalServerError, "failed to "+operation)
}

// HandleError 输出服务层错误
func HandleError(c *gin.Context, err error, operation string) {
	apiErr := ToAPIError(err, operation)
	ErrorWithData(c, apiErr.Code, apiErr.Message, apiErr.Detail, apiErr.Data)
}
