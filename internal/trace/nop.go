package trace

// nopSink discards everything.
type nopSink struct{}

func (nopSink) WriteLine(string)    {}
func (nopSink) WriteWarning(string) {}
func (nopSink) WriteError(string)   {}

// Nop is the package-level sink that discards all lines.
var Nop Sink = nopSink{}
