package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func AssertErrorResult(t *testing.T, res *mcp.CallToolResult, msg string) {
	t.Helper()
	if res == nil || !res.IsError {
		t.Error(msg)
	}
}

func AssertSuccessResult(t *testing.T, res *mcp.CallToolResult, msg string) {
	t.Helper()
	if res == nil {
		t.Errorf("%s: nil result", msg)
		return
	}
	if res.IsError {
		t.Errorf("%s: %s", msg, ResultText(res))
	}
}

func ParseResultJSON(res *mcp.CallToolResult, out any) error {
	return json.Unmarshal([]byte(ResultText(res)), out)
}
