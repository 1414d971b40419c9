package file

import (
	"cmp"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/jkaninda/toolguard/internal/tools"
)

// TreeToolName is the catalog name of the tree tool.
const TreeToolName = "tree"

const (
	entryKindDirectory = "directory"
	entryKindAll       = "all"

	defaultMaxDepth   = 3
	maxMaxDepth       = 12
	defaultMaxEntries = 100
	maxMaxEntries     = 1000
)

// Node kinds.
const (
	KindDirectory = "directory"
	KindFile      = "file"
	KindSymlink   = "symlink"
)

// TreeNode is one entry of the tree. Children and Truncated only apply to
// directories; Children is omitted when empty.
type TreeNode struct {
	Kind      string      `json:"kind"`
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Depth     int         `json:"depth"`
	Truncated bool        `json:"truncated,omitempty"`
	Children  []*TreeNode `json:"children,omitempty"`
}

// TreeOutput is the walk result. File and symlink totals are zero in
// directory mode.
type TreeOutput struct {
	Root           *TreeNode `json:"root"`
	LimitReached   bool      `json:"limit_reached"`
	ScannedEntries int       `json:"scanned_entries"`
	TotalDirs      int       `json:"total_dirs"`
	TotalFiles     int       `json:"total_files"`
	TotalSymlinks  int       `json:"total_symlinks"`
}

type treeInput struct {
	path          string
	entryKind     string
	maxDepth      int
	maxEntries    int
	includeHidden bool
	exclude       []string
}

// TreeTool walks workspace directories.
type TreeTool struct {
	logger *slog.Logger
}

// NewTreeTool creates the tree tool.
func NewTreeTool(logger *slog.Logger) *TreeTool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TreeTool{logger: logger}
}

// Entry returns the catalog entry for tree.
func (t *TreeTool) Entry() tools.Entry {
	return tools.Entry{
		Metadata: tools.Metadata{
			Name:        TreeToolName,
			Description: "Returns a workspace tree: directories only or directories with files.",
		},
		Handler: t.Handle,
		Resolve: func(args map[string]any) []any {
			return []any{
				args["path"],
				tools.Pick(args, "entry_kind", "max_depth", "max_entries", "include_hidden", "exclude"),
			}
		},
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Directory path in workspace."},
				"entry_kind": map[string]any{
					"type":        "string",
					"enum":        []string{entryKindDirectory, entryKindAll},
					"default":     entryKindDirectory,
					"description": "Node types to include (default: directory).",
				},
				"max_depth": map[string]any{
					"type":        "number",
					"default":     defaultMaxDepth,
					"description": "Maximum traversal depth (default: 3).",
				},
				"max_entries": map[string]any{
					"type":        "number",
					"default":     defaultMaxEntries,
					"description": "Maximum node count (default: 100).",
				},
				"include_hidden": map[string]any{
					"type":        "boolean",
					"default":     false,
					"description": "Include dot-prefixed entries (default: false).",
				},
				"exclude": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Glob patterns to exclude paths.",
				},
			},
			"required": []string{"path"},
		},
	}
}

// Handle implements tools.Handler: (path, options).
func (t *TreeTool) Handle(ctx context.Context, tc tools.ToolContext, args ...any) (any, error) {
	in, err := parseTreeInput(args)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(in.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tools.NewError(tools.CodeNotFound, "path not found: %s", in.path)
		}
		return nil, tools.AsCoded(err)
	}
	if !info.IsDir() {
		return nil, tools.NewError(tools.CodeNotDirectory, "path is not a directory: %s", in.path)
	}

	out, err := walkTree(tc.WorkspaceRoot, in)
	if err != nil {
		return nil, tools.AsCoded(err)
	}
	t.logger.DebugContext(ctx, "tree walked",
		slog.String("path", in.path),
		slog.Int("scanned_entries", out.ScannedEntries),
		slog.Bool("limit_reached", out.LimitReached),
	)
	return out, nil
}

func parseTreeInput(args []any) (treeInput, error) {
	invalid := func(msg string) (treeInput, error) {
		return treeInput{}, tools.NewError(tools.CodeInvalidArgument, "%s", msg)
	}

	path, err := requirePath(tools.Arg(args, 0))
	if err != nil {
		return treeInput{}, err
	}
	opts, err := tools.OptionsArg(args, 1)
	if err != nil {
		return treeInput{}, err
	}

	kind := entryKindDirectory
	if s, present, ok := tools.StringOption(opts, "entry_kind"); present {
		if !ok || (s != entryKindDirectory && s != entryKindAll) {
			return invalid(`entry_kind must be "directory" or "all"`)
		}
		kind = s
	}

	maxDepth, err := intRange(opts, "max_depth", defaultMaxDepth, 0, maxMaxDepth)
	if err != nil {
		return treeInput{}, err
	}
	maxEntries, err := intRange(opts, "max_entries", defaultMaxEntries, 1, maxMaxEntries)
	if err != nil {
		return treeInput{}, err
	}

	hidden, ok := tools.BoolOption(opts, "include_hidden", false)
	if !ok {
		return invalid("include_hidden must be a boolean")
	}

	var exclude []string
	if raw, present := opts["exclude"]; present && raw != nil {
		patterns, isList, ok := tools.StringSlice(raw)
		if !isList {
			return invalid("exclude must be a string array")
		}
		if !ok {
			return invalid("exclude must contain only strings")
		}
		exclude = patterns
	}

	return treeInput{
		path:          path,
		entryKind:     kind,
		maxDepth:      maxDepth,
		maxEntries:    maxEntries,
		includeHidden: hidden,
		exclude:       exclude,
	}, nil
}

// treeWalker carries the counters of one walk. The root counts as the
// first scanned entry and the first directory.
type treeWalker struct {
	root   string
	in     treeInput
	filter *treeFilter

	scanned      int
	limitReached bool
	dirs         int
	files        int
	symlinks     int
}

type sortableEntry struct {
	absPath string
	relPath string
	name    string
	kind    string
}

func walkTree(workspaceRoot string, in treeInput) (*TreeOutput, error) {
	filter, err := newTreeFilter(in.includeHidden, in.exclude)
	if err != nil {
		return nil, err
	}

	rel := workspaceRel(workspaceRoot, in.path)
	name := "."
	if rel != "." {
		name = filepath.Base(in.path)
	}
	root := &TreeNode{Kind: KindDirectory, Name: name, Path: rel, Depth: 0}

	w := &treeWalker{
		root:         workspaceRoot,
		in:           in,
		filter:       filter,
		scanned:      1,
		limitReached: in.maxEntries <= 1,
		dirs:         1,
	}
	if !w.limitReached {
		if err := w.walkDir(in.path, root); err != nil {
			return nil, err
		}
	}

	out := &TreeOutput{
		Root:           root,
		LimitReached:   w.limitReached,
		ScannedEntries: w.scanned,
		TotalDirs:      w.dirs,
	}
	if in.entryKind != entryKindDirectory {
		out.TotalFiles = w.files
		out.TotalSymlinks = w.symlinks
	}
	return out, nil
}

func (w *treeWalker) walkDir(absPath string, node *TreeNode) error {
	if w.limitReached {
		return nil
	}
	if node.Depth >= w.in.maxDepth {
		node.Truncated = true
		return nil
	}

	entries, err := w.readSorted(absPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if w.limitReached || w.scanned >= w.in.maxEntries {
			w.limitReached = true
			break
		}
		w.count(e.kind)

		child := &TreeNode{Kind: e.kind, Name: e.name, Path: e.relPath, Depth: node.Depth + 1}
		if e.kind == KindDirectory && !w.limitReached {
			if err := w.walkDir(e.absPath, child); err != nil {
				return err
			}
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

func (w *treeWalker) count(kind string) {
	w.scanned++
	if w.scanned >= w.in.maxEntries {
		w.limitReached = true
	}
	switch kind {
	case KindDirectory:
		w.dirs++
	case KindFile:
		w.files++
	case KindSymlink:
		w.symlinks++
	}
}

// readSorted lists a directory, drops filtered entries and orders the rest
// directories, files, symlinks, then by name.
func (w *treeWalker) readSorted(absPath string) ([]sortableEntry, error) {
	dirents, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}

	out := make([]sortableEntry, 0, len(dirents))
	for _, d := range dirents {
		abs := filepath.Join(absPath, d.Name())
		rel := workspaceRel(w.root, abs)
		if w.filter.exclude(rel, d.Name()) {
			continue
		}

		var kind string
		switch t := d.Type(); {
		case t.IsDir():
			kind = KindDirectory
		case t.IsRegular():
			kind = KindFile
		case t&fs.ModeSymlink != 0:
			kind = KindSymlink
		default:
			continue
		}
		if w.in.entryKind == entryKindDirectory && kind != KindDirectory {
			continue
		}
		out = append(out, sortableEntry{absPath: abs, relPath: rel, name: d.Name(), kind: kind})
	}

	slices.SortFunc(out, func(a, b sortableEntry) int {
		if c := cmp.Compare(kindWeight(a.kind), kindWeight(b.kind)); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return out, nil
}

func kindWeight(kind string) int {
	switch kind {
	case KindDirectory:
		return 0
	case KindFile:
		return 1
	default:
		return 2
	}
}
