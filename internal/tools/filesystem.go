package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const maxReadBytes = 256 * 1024

// RegisterFilesystem adds file_read, file_write, file_list, and file_search,
// all gated by the path guard.
func RegisterFilesystem(r *Registry, guard *PathGuard) {
	r.Register(&fileReadTool{guard})
	r.Register(&fileWriteTool{guard})
	r.Register(&fileListTool{guard})
	r.Register(&fileSearchTool{guard})
}

type fileReadTool struct{ guard *PathGuard }

func (t *fileReadTool) Name() string        { return "file_read" }
func (t *fileReadTool) Description() string { return "Read the contents of a text file" }
func (t *fileReadTool) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Required: true, Description: "File path to read"},
	}
}

func (t *fileReadTool) Execute(_ context.Context, args map[string]any) *Result {
	path, ok := t.guard.Resolve(args["path"].(string))
	if !ok {
		return Fail(accessDenied)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fail("read %s: %v", path, err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return Ok(string(data))
}

type fileWriteTool struct{ guard *PathGuard }

func (t *fileWriteTool) Name() string        { return "file_write" }
func (t *fileWriteTool) Description() string { return "Write text content to a file, creating parent directories" }
func (t *fileWriteTool) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Required: true, Description: "File path to write"},
		{Name: "content", Type: "string", Required: true, Description: "Content to write"},
	}
}

func (t *fileWriteTool) Execute(_ context.Context, args map[string]any) *Result {
	path, ok := t.guard.Resolve(args["path"].(string))
	if !ok {
		return Fail(accessDenied)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail("mkdir: %v", err)
	}
	content := args["content"].(string)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail("write %s: %v", path, err)
	}
	return Ok(map[string]any{"path": path, "bytes": len(content)})
}

type fileListTool struct{ guard *PathGuard }

func (t *fileListTool) Name() string        { return "file_list" }
func (t *fileListTool) Description() string { return "List directory entries" }
func (t *fileListTool) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Required: true, Description: "Directory to list"},
	}
}

func (t *fileListTool) Execute(_ context.Context, args map[string]any) *Result {
	path, ok := t.guard.Resolve(args["path"].(string))
	if !ok {
		return Fail(accessDenied)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Fail("list %s: %v", path, err)
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{"name": e.Name(), "dir": e.IsDir()})
	}
	return Ok(out)
}

type fileSearchTool struct{ guard *PathGuard }

func (t *fileSearchTool) Name() string        { return "file_search" }
func (t *fileSearchTool) Description() string { return "Search files under a directory for a substring" }
func (t *fileSearchTool) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Required: true, Description: "Directory to search"},
		{Name: "query", Type: "string", Required: true, Description: "Substring to look for"},
	}
}

func (t *fileSearchTool) Execute(_ context.Context, args map[string]any) *Result {
	root, ok := t.guard.Resolve(args["path"].(string))
	if !ok {
		return Fail(accessDenied)
	}
	query := args["query"].(string)

	var hits []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxReadBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), query) {
			hits = append(hits, path)
		}
		if len(hits) >= 50 {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return Fail("search %s: %v", root, err)
	}
	return Ok(hits)
}
