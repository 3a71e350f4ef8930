package response

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/perrors"
)

// Response is the envelope every endpoint writes.
type Response[T any] struct {
	ctx          context.Context
	ErrorDetails *perrors.Err `json:"errorDetails,omitempty"`
	Error        bool         `json:"error"`
	Message      string       `json:"message"`
	Data         T            `json:"data"`
	Status       int          `json:"status"`
}

func NewResponse[T any](ctx context.Context, msg string, data T) *Response[T] {
	return &Response[T]{
		ctx:     ctx,
		Message: msg,
		Data:    data,
		Status:  http.StatusOK,
	}
}

// WithError sets the error details and status. Errors that are not a perrors.Err are reported
// as internal server errors.
func (r *Response[T]) WithError(err error) *Response[T] {
	var perr perrors.Err
	if !errors.As(err, &perr) {
		perr = perrors.NewErrInternalServerError(r.Message, err).(perrors.Err)
	}

	r.Status = perr.HttpStatus()
	r.ErrorDetails = &perr
	r.Error = true
	perr.Print(r.ctx)

	return r
}

// WithStatus will set the HTTP response status code.
//
// Prefer a perrors.Err carrying the status whenever the response is an error.
func (r *Response[T]) WithStatus(code int) *Response[T] {
	r.Status = code

	return r
}

// Write sets the `content-type` to `application/json` and writes the response to the fasthttp context.
func (r *Response[T]) Write(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("content-type", "application/json")
	ctx.SetStatusCode(r.Status)

	body, err := json.Marshal(r)
	if err != nil {
		slog.ErrorContext(r.ctx, "Unable to json encode response", slog.Any("error", err))
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}

	ctx.SetBody(body)
}
