package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func invokeFile(t *testing.T, tool *FileTool, args map[string]string) (string, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return tool.Invoke(context.Background(), raw)
}

func TestFileToolWriteReadList(t *testing.T) {
	tool := NewFileTool(t.TempDir())

	out, err := invokeFile(t, tool, map[string]string{"op": "write", "path": "notes/a.txt", "content": "hello"})
	assert.NoError(t, err)
	assert.Contains(t, out, "wrote 5 bytes")

	out, err = invokeFile(t, tool, map[string]string{"op": "read", "path": "notes/a.txt"})
	assert.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = invokeFile(t, tool, map[string]string{"op": "list", "path": ""})
	assert.NoError(t, err)
	assert.Equal(t, "notes/", out)
}

func TestFileToolRejectsEscapes(t *testing.T) {
	tool := NewFileTool(t.TempDir())

	_, err := invokeFile(t, tool, map[string]string{"op": "read", "path": "../outside.txt"})
	assert.Error(t, err)

	_, err = invokeFile(t, tool, map[string]string{"op": "read", "path": "/etc/passwd"})
	assert.Error(t, err)
}

func TestFileToolUnknownOp(t *testing.T) {
	tool := NewFileTool(t.TempDir())

	_, err := invokeFile(t, tool, map[string]string{"op": "delete", "path": "a.txt"})
	assert.Error(t, err)
}
