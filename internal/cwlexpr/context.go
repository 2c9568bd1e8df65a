package cwlexpr

// Context holds the values an expression can see.
type Context struct {
	// Inputs maps input ids to their values. During conversion only input
	// defaults are known, so unset inputs are simply absent.
	Inputs map[string]any

	// Runtime is exposed to expressions as the runtime object.
	Runtime *RuntimeContext
}

// RuntimeContext mirrors the CWL runtime object for the target execution
// environment. Sizes are in mebibytes.
type RuntimeContext struct {
	Cores      int   `json:"cores"`
	Ram        int64 `json:"ram"`
	OutdirSize int64 `json:"outdirSize"`
	TmpdirSize int64 `json:"tmpdirSize"`
}

// NewContext creates a context with the given inputs and default runtime.
func NewContext(inputs map[string]any) *Context {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Context{
		Inputs:  inputs,
		Runtime: DefaultRuntimeContext(),
	}
}

// DefaultRuntimeContext matches the resource mapper defaults: one core,
// 1 GiB of RAM and 10 GiB of scratch.
func DefaultRuntimeContext() *RuntimeContext {
	return &RuntimeContext{
		Cores:      1,
		Ram:        1024,
		OutdirSize: 10240,
		TmpdirSize: 10240,
	}
}

func (r *RuntimeContext) toMap() map[string]any {
	return map[string]any{
		"cores":      r.Cores,
		"ram":        r.Ram,
		"outdirSize": r.OutdirSize,
		"tmpdirSize": r.TmpdirSize,
	}
}
