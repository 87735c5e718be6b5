package services

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

type ErrorCode string

const (
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeAmbiguous          ErrorCode = "AMBIGUOUS"
	ErrorCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrorCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
)

// Error はキュー操作のエラー。Message はそのままチャットに返せる文言
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func newPersistenceError(err error) *Error {
	return &Error{
		Code:    ErrorCodePersistenceFailure,
		Message: "Sorry, I couldn't save the code review queue. Please try again.",
		Err:     errors.Wrap(err, "save queue snapshot"),
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf はエラーコードを取り出す。キューのエラーでなければ空文字
func CodeOf(err error) ErrorCode {
	var qe *Error
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// ReplyText はチャットに返す文言を取り出す
func ReplyText(err error) string {
	var qe *Error
	if stderrors.As(err, &qe) {
		return qe.Message
	}
	return "Sorry, something went wrong with the code review queue."
}
