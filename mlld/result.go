package mlld

// ExecuteResult contains structured output from Execute.
type ExecuteResult struct {
	Output      string       `json:"output"`
	StateWrites []StateWrite `json:"stateWrites,omitempty"`
	Exports     any          `json:"exports,omitempty"` // array or object depending on the module
	Effects     []Effect     `json:"effects,omitempty"`
	Metrics     *Metrics     `json:"metrics,omitempty"`
}

// Effect represents an output effect from execution.
type Effect struct {
	Type     string         `json:"type"`
	Content  string         `json:"content,omitempty"`
	Security map[string]any `json:"security,omitempty"`
}

// StateWrite records a write to the state:// protocol during a request.
type StateWrite struct {
	Path      string `json:"path"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Metrics contains execution statistics.
type Metrics struct {
	TotalMs    float64 `json:"totalMs"`
	ParseMs    float64 `json:"parseMs"`
	EvaluateMs float64 `json:"evaluateMs"`
}

// AnalyzeResult contains static analysis of an mlld module.
type AnalyzeResult struct {
	Filepath    string          `json:"filepath"`
	Valid       bool            `json:"valid"`
	Errors      []AnalysisError `json:"errors,omitempty"`
	Executables []Executable    `json:"executables,omitempty"`
	Exports     []string        `json:"exports,omitempty"`
	Imports     []Import        `json:"imports,omitempty"`
	Guards      []Guard         `json:"guards,omitempty"`
	Needs       *Needs          `json:"needs,omitempty"`
}

// AnalysisError is a parse or analysis error.
type AnalysisError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Executable is an executable defined in a module.
type Executable struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// Import is an import statement in a module.
type Import struct {
	From  string   `json:"from"`
	Names []string `json:"names,omitempty"`
}

// Guard is a guard defined in a module.
type Guard struct {
	Name   string `json:"name"`
	Timing string `json:"timing"`
	Label  string `json:"label,omitempty"`
}

// Needs describes capability requirements for a module.
type Needs struct {
	Cmd  []string `json:"cmd,omitempty"`
	Node []string `json:"node,omitempty"`
	Py   []string `json:"py,omitempty"`
}
