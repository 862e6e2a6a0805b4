// Package bwfuncmw provides stock middleware and plugins for bwfunc:
// environment import, API Gateway stage variables, Lambda context and trace
// fields for diagnostics, an API Gateway error response and AWS SDK clients
// that follow the instance lifecycle.
//
//	f.Env(bwfuncmw.ProcessEnv(bwfuncmw.WithPrefix("APP_"), bwfuncmw.WithLowerCamel()))
//	f.Plugin(bwfuncmw.LambdaFields{})
//	f.Request(bwfuncmw.TraceFields())
//	f.Error(bwfuncmw.ErrorResponse())
//
//	clients := bwfuncmw.NewAWS()
//	bwfuncmw.RegisterClient(clients, dynamodb.NewFromConfig)
//	f.Plugin(clients)
package bwfuncmw
