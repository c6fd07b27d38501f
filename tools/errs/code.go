package errs

// 业务错误码：1xxx 客户端 / 2xxx 权限 / 5xxx 服务端
var (
	ErrArgs           = NewCodeError(1001, "invalid argument")
	ErrRecordNotFound = NewCodeError(1002, "record not found")
	ErrUnknownAction  = NewCodeError(1003, "unknown action")

	ErrNoPermission = NewCodeError(2001, "no permission")
	ErrTokenInvalid = NewCodeError(2002, "token invalid")
	ErrTokenExpired = NewCodeError(2003, "token expired")
	ErrBadSignature = NewCodeError(2004, "signature mismatch")

	ErrRateLimited = NewCodeError(4290, "too many requests")

	ErrInternalServer = NewCodeError(5000, "internal server error")
	ErrStore          = NewCodeError(5001, "store unavailable")
)
