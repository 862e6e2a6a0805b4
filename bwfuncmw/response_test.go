package bwfuncmw_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/basewarphq/bwfunc/bwfuncmw"
	"github.com/cockroachdb/errors"
)

type notFoundError struct{ id string }

func (e *notFoundError) Error() string   { return "item " + e.id + " not found" }
func (e *notFoundError) StatusCode() int { return http.StatusNotFound }

func invokeFailing(t *testing.T, mode string, err error) (events.APIGatewayProxyResponse, bwfuncmw.ErrorBody) {
	t.Helper()
	f, _ := newFunc(t)
	f.SetMode(mode)
	must(t, f.Request(bwfunc.Named("lookup", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		return err
	})))
	must(t, f.Error(bwfuncmw.ErrorResponse()))

	resp, ok := f.Invoke(context.Background(), &bwfunc.Invocation{}).(events.APIGatewayProxyResponse)
	if !ok {
		t.Fatal("expected an API Gateway response")
	}
	var body bwfuncmw.ErrorBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

func TestErrorResponse(t *testing.T) {
	t.Run("development exposes details", func(t *testing.T) {
		resp, body := invokeFailing(t, bwfunc.ModeDevelopment, errors.Wrap(&notFoundError{id: "42"}, "lookup"))
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if body.Message != "lookup: item 42 not found" {
			t.Errorf("message = %q", body.Message)
		}
		if body.Component != "lookup" {
			t.Errorf("component = %q", body.Component)
		}
		if !strings.Contains(body.Stack, "response_test.go") {
			t.Errorf("expected a stack trace, got %q", body.Stack)
		}
		if resp.Headers["Content-Type"] != "application/json" {
			t.Errorf("content type = %q", resp.Headers["Content-Type"])
		}
	})

	t.Run("production hides details", func(t *testing.T) {
		resp, body := invokeFailing(t, bwfunc.ModeProduction, errors.New("password=hunter2"))
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if body.Message != "Internal Server Error" || body.Stack != "" || body.Component != "" {
			t.Errorf("unexpected body %+v", body)
		}
	})
}

func TestJSONResponse(t *testing.T) {
	f, _ := newFunc(t)
	must(t, f.Request(bwfuncmw.JSONResponse(), bwfunc.Named("items", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		inv.Response = map[string]any{"items": []string{"a", "b"}}
		return next(ctx)
	})))

	resp, ok := f.Invoke(context.Background(), &bwfunc.Invocation{}).(events.APIGatewayProxyResponse)
	if !ok {
		t.Fatal("expected an API Gateway response")
	}
	if resp.StatusCode != http.StatusOK || resp.Body != `{"items":["a","b"]}` {
		t.Errorf("response = %d %s", resp.StatusCode, resp.Body)
	}
}
