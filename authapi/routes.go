package authapi

// Auth route constants, shared with the fake backend used in tests.
const (
	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register"
	RouteAuthRenew    = "/auth/renew"
)
