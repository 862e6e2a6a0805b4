package bwfuncmw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/cockroachdb/errors"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ErrorBody is the JSON body written by ErrorResponse.
type ErrorBody struct {
	Message   string `json:"message"`
	Component string `json:"component,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

// ErrorResponse returns error middleware that turns Invocation.Error into an
// API Gateway proxy response. The status is taken from the first error in
// the chain that implements StatusCoder and defaults to 500. The error
// message, failing component and stack trace are only included when the
// error is flagged for exposure.
func ErrorResponse() bwfunc.Middleware {
	return bwfunc.Named("ErrorResponse:Error", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		if inv.Error == nil {
			return next(ctx)
		}

		status := http.StatusInternalServerError
		var sc StatusCoder
		if errors.As(inv.Error.Err, &sc) {
			status = sc.StatusCode()
		}

		body := ErrorBody{Message: http.StatusText(status)}
		if inv.Error.Expose {
			body.Message = inv.Error.Error()
			body.Component = inv.Error.Component
		}
		if inv.Error.Stacktrace {
			body.Stack = fmt.Sprintf("%+v", inv.Error.Err)
		}

		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode error response")
		}
		inv.Response = events.APIGatewayProxyResponse{
			StatusCode: status,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(data),
		}
		return next(ctx)
	})
}

// JSONResponse returns request middleware that encodes the response set by
// downstream middleware as the JSON body of an API Gateway proxy response
// with status 200. Responses that already are proxy responses are kept.
func JSONResponse() bwfunc.Middleware {
	return bwfunc.Named("JSONResponse:Request", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		if err := next(ctx); err != nil {
			return err
		}

		switch inv.Response.(type) {
		case events.APIGatewayProxyResponse, *events.APIGatewayProxyResponse:
			return nil
		}

		data, err := json.Marshal(inv.Response)
		if err != nil {
			return errors.Wrap(err, "failed to encode response")
		}
		inv.Response = events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(data),
		}
		return nil
	})
}
