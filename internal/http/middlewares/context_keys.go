package middlewares

const (
	CtxRequestID = "request_id"

	ctxUserIDKey    = "auth.userID"
	ctxEmailKey     = "auth.email"
	ctxFirstNameKey = "auth.firstName"
	ctxLastNameKey  = "auth.lastName"
)
