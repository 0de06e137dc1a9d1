package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope. The http status stays 200; callers read the code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

// Fail maps err onto an error code and writes it with the full error text.
func Fail(c *gin.Context, err error) {
	Error(c, CodeOf(err), err.Error())
}

// ordered: cause kinds first so that "backend down" and "bad input" stay distinguishable
var codeTable = []struct {
	kind error
	code int
}{
	{appErr.ErrDimensionMismatch, errcode.ErrDimensionMismatch},
	{appErr.ErrInvalid, errcode.ErrInvalid},
	{appErr.ErrUnauthorized, errcode.ErrUnauthorized},
	{appErr.ErrNotFound, errcode.ErrNotFound},
	{appErr.ErrTooMany, errcode.ErrTooMany},
	{appErr.ErrTimeout, errcode.ErrTimeout},
	{appErr.ErrUnavailable, errcode.ErrAIUnavailable},
	{appErr.ErrIndex, errcode.ErrIndexUnavailable},
	{appErr.ErrRetrieval, errcode.ErrRetrievalFailed},
	{appErr.ErrEmbedding, errcode.ErrEmbeddingFailed},
	{appErr.ErrGeneration, errcode.ErrGenerationFailed},
	{appErr.ErrIngestion, errcode.ErrIngestionFailed},
}

func CodeOf(err error) int {
	for _, item := range codeTable {
		if errors.Is(err, item.kind) {
			return item.code
		}
	}
	return errcode.ErrInternal
}
