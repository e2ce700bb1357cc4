package domain

// CtxKey names values the HTTP layer stores on the request context.
type CtxKey string

const (
	KeyRequestID CtxKey = "request_id"

	// Set by the recruiter auth middleware.
	KeyRecruiterID    CtxKey = "recruiter_id"
	KeyRecruiterEmail CtxKey = "recruiter_email"
	KeyRecruiterRole  CtxKey = "recruiter_role"

	// Set once the path job id has been checked against the token scope.
	KeyJobID CtxKey = "job_id"
)
