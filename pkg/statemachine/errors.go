package statemachine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/project-approval/pkg/types"
)

// ErrorKind 工作流错误类型
type ErrorKind string

const (
	KindNoPendingStep            ErrorKind = "NoPendingStep"
	KindNotAuthorized            ErrorKind = "NotAuthorized"
	KindMissingComplianceProgram ErrorKind = "MissingComplianceProgram"
	KindNonCompliantProgram      ErrorKind = "NonCompliantProgram"
	KindDocumentsIncomplete      ErrorKind = "DocumentsIncomplete"
	KindInvalidResubmitState     ErrorKind = "InvalidResubmitState"
	KindConcurrentModification   ErrorKind = "ConcurrentModification"
	KindInvalidTransition        ErrorKind = "InvalidTransition"
	KindInvalidRejectionReason   ErrorKind = "InvalidRejectionReason"
)

// Error 工作流错误,调用方可恢复的预期错误
type Error struct {
	Kind             ErrorKind   `json:"kind"`
	Message          string      `json:"message"`
	ProjectID        string      `json:"projectId,omitempty"`
	Level            types.Level `json:"level,omitempty"`
	MissingDocuments []string    `json:"missingDocuments,omitempty"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.MissingDocuments) > 0 {
		fmt.Fprintf(&b, " (%d missing: %s)", len(e.MissingDocuments), strings.Join(e.MissingDocuments, ", "))
	}
	return b.String()
}

// Is 按错误类型匹配,支持 errors.Is(err, ErrNotAuthorized)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 用于 errors.Is 匹配的哨兵错误
var (
	ErrNoPendingStep            = &Error{Kind: KindNoPendingStep}
	ErrNotAuthorized            = &Error{Kind: KindNotAuthorized}
	ErrMissingComplianceProgram = &Error{Kind: KindMissingComplianceProgram}
	ErrNonCompliantProgram      = &Error{Kind: KindNonCompliantProgram}
	ErrDocumentsIncomplete      = &Error{Kind: KindDocumentsIncomplete}
	ErrInvalidResubmitState     = &Error{Kind: KindInvalidResubmitState}
	ErrConcurrentModification   = &Error{Kind: KindConcurrentModification}
	ErrInvalidTransition        = &Error{Kind: KindInvalidTransition}
	ErrInvalidRejectionReason   = &Error{Kind: KindInvalidRejectionReason}
)

// NewError 创建工作流错误,供持久化层报告版本冲突等情况
func NewError(kind ErrorKind, projectID string, format string, args ...interface{}) *Error {
	return newError(kind, projectID, format, args...)
}

func newError(kind ErrorKind, projectID string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:      kind,
		ProjectID: projectID,
		Message:   fmt.Sprintf(format, args...),
	}
}

// KindOf 返回错误的工作流类型,非工作流错误返回空字符串
func KindOf(err error) ErrorKind {
	var wfErr *Error
	if err != nil && errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}
