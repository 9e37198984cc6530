package core

// Logger is any leveled logger the app reports to.
//
// Implementations may inspect args for known types (eg. the logged-in account)
// and forward the rest as structured context.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
