package bwfuncmw

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/basewarphq/bwfunc/bwfunc"
	"github.com/iancoleman/strcase"
)

// StageVariables returns env middleware that copies the stage variables of
// an API Gateway proxy event into Invocation.Environment. Stage variables
// are constant per deployment stage, so reading them on a cold start is
// enough. Events that are not API Gateway proxy requests are ignored.
func StageVariables(opts ...EnvOption) bwfunc.Middleware {
	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	return bwfunc.Named("StageVariables:Env", func(ctx context.Context, inv *bwfunc.Invocation, next bwfunc.Next) error {
		if req := apiGatewayRequest(inv.Event); req != nil {
			for key, value := range req.StageVariables {
				if o.lowerCamel {
					key = strcase.ToLowerCamel(key)
				}
				inv.Environment[key] = value
			}
		}
		return next(ctx)
	})
}

// apiGatewayRequest returns the event as an API Gateway proxy request, nil
// when it is not one.
func apiGatewayRequest(event any) *events.APIGatewayProxyRequest {
	switch ev := event.(type) {
	case events.APIGatewayProxyRequest:
		return &ev
	case *events.APIGatewayProxyRequest:
		return ev
	case json.RawMessage:
		var req events.APIGatewayProxyRequest
		if json.Unmarshal(ev, &req) != nil || req.HTTPMethod == "" {
			return nil
		}
		return &req
	default:
		return nil
	}
}
