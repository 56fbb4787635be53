// Package memorytool exposes the memory store to an agent as one tool
// with a command discriminator. All six verbs operate on paths under
// /memories; paths omitting the root are implicitly rooted.
package memorytool

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/recall/pkg/memory/store"
	"github.com/entrhq/recall/pkg/tools"
)

const toolName = "memory"

// Tool dispatches the six memory verbs to a storage backend.
type Tool struct {
	backend store.Backend
}

// New creates the memory tool over the given backend.
func New(backend store.Backend) *Tool {
	return &Tool{backend: backend}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return toolName
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Manage persistent memory files under the /memories directory. " +
		"Supports viewing files and directories, creating and editing files, " +
		"and deleting or renaming files and directories. Memory persists across sessions."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *Tool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"view", "create", "str_replace", "insert", "delete", "rename"},
				"description": "The memory operation to perform.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path under /memories (all commands except rename).",
			},
			"view_range": map[string]interface{}{
				"type":        "array",
				"description": "Optional [start, end] line range for view, 1-based inclusive; end -1 means to the last line.",
				"items":       map[string]interface{}{"type": "integer"},
				"minItems":    2,
				"maxItems":    2,
			},
			"file_text": map[string]interface{}{
				"type":        "string",
				"description": "Full file content for create.",
			},
			"old_str": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace for str_replace; must occur exactly once.",
			},
			"new_str": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text for str_replace.",
			},
			"insert_line": map[string]interface{}{
				"type":        "integer",
				"description": "0-based line index for insert; the line count appends at the end.",
			},
			"insert_text": map[string]interface{}{
				"type":        "string",
				"description": "Text to insert as a new line for insert.",
			},
			"old_path": map[string]interface{}{
				"type":        "string",
				"description": "Source path for rename.",
			},
			"new_path": map[string]interface{}{
				"type":        "string",
				"description": "Destination path for rename.",
			},
		},
		[]string{"command"},
	)
}

type arguments struct {
	XMLName    xml.Name `xml:"arguments"`
	Command    string   `xml:"command"`
	Path       string   `xml:"path"`
	ViewRange  []int    `xml:"view_range>value"`
	FileText   *string  `xml:"file_text"`
	OldStr     *string  `xml:"old_str"`
	NewStr     *string  `xml:"new_str"`
	InsertLine *int     `xml:"insert_line"`
	InsertText *string  `xml:"insert_text"`
	OldPath    string   `xml:"old_path"`
	NewPath    string   `xml:"new_path"`
}

// Execute dispatches one memory command.
func (t *Tool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var args arguments
	if err := xml.Unmarshal(argsXML, &args); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Command == "" {
		return "", nil, fmt.Errorf("missing required parameter: command")
	}

	result, err := t.dispatch(ctx, &args)
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{
		"command": args.Command,
	}
	if args.Command == "rename" {
		metadata["old_path"] = args.OldPath
		metadata["new_path"] = args.NewPath
	} else {
		metadata["path"] = args.Path
	}
	return result, metadata, nil
}

func (t *Tool) dispatch(ctx context.Context, args *arguments) (string, error) {
	switch args.Command {
	case "view":
		if args.Path == "" {
			return "", fmt.Errorf("missing required parameter for view: path")
		}
		var rng []int
		if len(args.ViewRange) > 0 {
			if len(args.ViewRange) != 2 {
				return "", fmt.Errorf("view_range must have exactly 2 elements, got %d", len(args.ViewRange))
			}
			rng = args.ViewRange
		}
		return t.backend.View(ctx, args.Path, rng)

	case "create":
		if args.Path == "" {
			return "", fmt.Errorf("missing required parameter for create: path")
		}
		if args.FileText == nil {
			return "", fmt.Errorf("missing required parameter for create: file_text")
		}
		return t.backend.Create(ctx, args.Path, *args.FileText)

	case "str_replace":
		if args.Path == "" {
			return "", fmt.Errorf("missing required parameter for str_replace: path")
		}
		if args.OldStr == nil {
			return "", fmt.Errorf("missing required parameter for str_replace: old_str")
		}
		newStr := ""
		if args.NewStr != nil {
			newStr = *args.NewStr
		}
		return t.backend.Replace(ctx, args.Path, *args.OldStr, newStr)

	case "insert":
		if args.Path == "" {
			return "", fmt.Errorf("missing required parameter for insert: path")
		}
		if args.InsertLine == nil {
			return "", fmt.Errorf("missing required parameter for insert: insert_line")
		}
		if args.InsertText == nil {
			return "", fmt.Errorf("missing required parameter for insert: insert_text")
		}
		return t.backend.Insert(ctx, args.Path, *args.InsertLine, *args.InsertText)

	case "delete":
		if args.Path == "" {
			return "", fmt.Errorf("missing required parameter for delete: path")
		}
		return t.backend.Delete(ctx, args.Path)

	case "rename":
		if args.OldPath == "" || args.NewPath == "" {
			return "", fmt.Errorf("rename requires both old_path and new_path")
		}
		return t.backend.Rename(ctx, args.OldPath, args.NewPath)

	default:
		return "", fmt.Errorf("unknown command %q: expected view, create, str_replace, insert, delete, or rename", args.Command)
	}
}
