package bwfunc

// Lifecycle names one of the five phases a middleware can be registered for.
type Lifecycle string

const (
	// LifecycleEnv resolves the instance environment. Runs once per cold start.
	LifecycleEnv Lifecycle = "env"
	// LifecycleStart performs one-time startup work. Runs once per cold start, after env.
	LifecycleStart Lifecycle = "start"
	// LifecycleRequest handles the invocation. Runs on every invocation.
	LifecycleRequest Lifecycle = "request"
	// LifecycleError handles a failure that escaped env, start or request.
	LifecycleError Lifecycle = "error"
	// LifecycleTeardown releases instance resources before a restart.
	LifecycleTeardown Lifecycle = "teardown"
)

// Lifecycles lists every lifecycle in execution order.
var Lifecycles = []Lifecycle{
	LifecycleEnv,
	LifecycleStart,
	LifecycleRequest,
	LifecycleError,
	LifecycleTeardown,
}

// Valid reports whether l is one of the known lifecycles.
func (l Lifecycle) Valid() bool {
	switch l {
	case LifecycleEnv, LifecycleStart, LifecycleRequest, LifecycleError, LifecycleTeardown:
		return true
	default:
		return false
	}
}

func (l Lifecycle) String() string { return string(l) }
