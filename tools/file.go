package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mkwng/poegate/llm"
)

// FileTool reads, writes and lists files under a fixed workdir.
type FileTool struct {
	workdir string
}

// NewFileTool creates the file tool rooted at workdir.
func NewFileTool(workdir string) *FileTool {
	return &FileTool{workdir: filepath.Clean(workdir)}
}

func (f *FileTool) Name() string { return "file" }

func (f *FileTool) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        f.Name(),
			Description: "Read, write or list files in the agent's working directory.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"op": map[string]interface{}{
						"type": "string",
						"enum": []string{"read", "write", "list"},
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path relative to the working directory. Empty lists the root.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "Content to write, for op=write.",
					},
				},
				"required": []string{"op"},
			},
		},
	}
}

func (f *FileTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Op      string `json:"op"`
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid file args: %w", err)
	}

	target, err := f.resolve(req.Path)
	if err != nil {
		return "", err
	}

	switch req.Op {
	case "read":
		data, err := os.ReadFile(target)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", req.Path, err)
		}
		return string(data), nil

	case "write":
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", req.Path, err)
		}
		if err := os.WriteFile(target, []byte(req.Content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", req.Path, err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(req.Content), req.Path), nil

	case "list":
		entries, err := os.ReadDir(target)
		if err != nil {
			return "", fmt.Errorf("failed to list %s: %w", req.Path, err)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return "empty directory", nil
		}
		return strings.Join(names, "\n"), nil

	default:
		return "", fmt.Errorf("unknown file op %q", req.Op)
	}
}

// resolve maps a request path into the workdir and rejects escapes. The
// policy engine blocks these too; this keeps the tool safe on its own.
func (f *FileTool) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	cleaned := filepath.Clean(filepath.Join(f.workdir, path))
	if cleaned != f.workdir && !strings.HasPrefix(cleaned, f.workdir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return cleaned, nil
}
