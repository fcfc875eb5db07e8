package clog

// Level is clog's transport-agnostic severity; handlers map it onto
// slog levels.
type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

// HTTPStatusToLevel grades a response status for request logging. 499
// is the client closing the connection mid-request.
func HTTPStatusToLevel(status int) Level {
	switch {
	case status == 499:
		return LevelInfo
	case status < 100:
		return LevelError
	case status < 400:
		return LevelInfo
	case status < 500:
		return LevelWarn
	default:
		return LevelError
	}
}
