package mlld

import "time"

// ProcessOptions configures a Process call.
type ProcessOptions struct {
	// FilePath provides context for relative imports.
	FilePath string

	// Payload is injected as @payload in the script.
	Payload any

	// State is injected as @state in the script.
	State any

	// DynamicModules are injected as importable modules, keyed by name.
	DynamicModules map[string]any

	// DynamicModuleSource labels where the dynamic modules came from.
	DynamicModuleSource string

	// Mode selects the parsing mode (strict|markdown).
	Mode string

	// AllowAbsolutePaths permits absolute filesystem path access.
	AllowAbsolutePaths *bool

	// Timeout overrides the client default.
	Timeout time.Duration
}

// ExecuteOptions configures an Execute call.
type ExecuteOptions struct {
	// State is injected as @state in the script.
	State any

	// DynamicModules are injected as importable modules, keyed by name.
	DynamicModules map[string]any

	// DynamicModuleSource labels where the dynamic modules came from.
	DynamicModuleSource string

	// Mode selects the parsing mode (strict|markdown).
	Mode string

	// AllowAbsolutePaths permits absolute filesystem path access.
	AllowAbsolutePaths *bool

	// Timeout overrides the client default.
	Timeout time.Duration
}

// params builders omit absent fields entirely rather than sending nulls.

func processParams(script string, opts *ProcessOptions) map[string]any {
	params := map[string]any{"script": script}

	if opts.FilePath != "" {
		params["filePath"] = opts.FilePath
	}
	if opts.Payload != nil {
		params["payload"] = opts.Payload
	}
	if opts.State != nil {
		params["state"] = opts.State
	}
	if opts.DynamicModules != nil {
		params["dynamicModules"] = opts.DynamicModules
	}
	if opts.DynamicModuleSource != "" {
		params["dynamicModuleSource"] = opts.DynamicModuleSource
	}
	if opts.Mode != "" {
		params["mode"] = opts.Mode
	}
	if opts.AllowAbsolutePaths != nil {
		params["allowAbsolutePaths"] = *opts.AllowAbsolutePaths
	}

	return params
}

func executeParams(filepath string, payload any, opts *ExecuteOptions) map[string]any {
	params := map[string]any{"filepath": filepath}

	if payload != nil {
		params["payload"] = payload
	}
	if opts.State != nil {
		params["state"] = opts.State
	}
	if opts.DynamicModules != nil {
		params["dynamicModules"] = opts.DynamicModules
	}
	if opts.DynamicModuleSource != "" {
		params["dynamicModuleSource"] = opts.DynamicModuleSource
	}
	if opts.Mode != "" {
		params["mode"] = opts.Mode
	}
	if opts.AllowAbsolutePaths != nil {
		params["allowAbsolutePaths"] = *opts.AllowAbsolutePaths
	}

	return params
}
