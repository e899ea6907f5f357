package mlld

import (
	"testing"
	"time"
)

func TestProcessParams_MinimalOmitsAbsentFields(t *testing.T) {
	params := processParams("hello", &ProcessOptions{})

	if len(params) != 1 {
		t.Errorf("params = %v, want only script", params)
	}
	if params["script"] != "hello" {
		t.Errorf("script = %v", params["script"])
	}
}

func TestProcessParams_AllFields(t *testing.T) {
	allow := false
	params := processParams("hello", &ProcessOptions{
		FilePath:            "/project/main.mld",
		Payload:             map[string]any{"text": "hi"},
		State:               map[string]any{"count": 1},
		DynamicModules:      map[string]any{"@config": map[string]any{"mode": "live"}},
		DynamicModuleSource: "test-suite",
		Mode:                "strict",
		AllowAbsolutePaths:  &allow,
		Timeout:             time.Second, // transport-side only, never a param
	})

	for _, key := range []string{"script", "filePath", "payload", "state", "dynamicModules", "dynamicModuleSource", "mode", "allowAbsolutePaths"} {
		if _, ok := params[key]; !ok {
			t.Errorf("Missing param %q", key)
		}
	}
	if _, ok := params["timeout"]; ok {
		t.Error("Timeout must not be sent as a param")
	}
	if params["allowAbsolutePaths"] != false {
		t.Errorf("allowAbsolutePaths = %v, want explicit false", params["allowAbsolutePaths"])
	}
}

func TestExecuteParams_MinimalOmitsAbsentFields(t *testing.T) {
	params := executeParams("main.mld", nil, &ExecuteOptions{})

	if len(params) != 1 {
		t.Errorf("params = %v, want only filepath", params)
	}
	if params["filepath"] != "main.mld" {
		t.Errorf("filepath = %v", params["filepath"])
	}
}

func TestExecuteParams_AllFields(t *testing.T) {
	allow := true
	params := executeParams("main.mld", map[string]any{"text": "hi"}, &ExecuteOptions{
		State:               map[string]any{"count": 0},
		DynamicModules:      map[string]any{"@config": map[string]any{"mode": "live"}},
		DynamicModuleSource: "test-suite",
		Mode:                "markdown",
		AllowAbsolutePaths:  &allow,
	})

	for _, key := range []string{"filepath", "payload", "state", "dynamicModules", "dynamicModuleSource", "mode", "allowAbsolutePaths"} {
		if _, ok := params[key]; !ok {
			t.Errorf("Missing param %q", key)
		}
	}
	if params["mode"] != "markdown" {
		t.Errorf("mode = %v", params["mode"])
	}
}
