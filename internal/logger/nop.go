package logger

// Nop discards every entry.
type Nop struct{}

// Log implements Writer.
func (Nop) Log(Level, string, ...interface{}) {}
