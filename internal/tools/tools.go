// Package tools implements the Tool Registry: the builtin tool surface
// the Agent Loop drives (shell, filesystem, memory, tasks, and content
// chunk access), plus inline-JSON-call execution and descriptor export.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polaco1782/opencrank/internal/agent"
	"github.com/polaco1782/opencrank/internal/chunker"
	"github.com/polaco1782/opencrank/internal/fetch"
	"github.com/polaco1782/opencrank/internal/memory"
)

// Tool is one registered builtin: its descriptor plus the handler that
// executes it.
type Tool struct {
	Descriptor agent.ToolDescriptor
	Handler    func(ctx context.Context, args map[string]any) agent.ToolResult
}

// Registry holds the builtin tool set and the backing services
// (filesystem, shell, memory, chunker) their handlers call into. One
// Registry is constructed per process and shared by every Agent Loop run.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	files  *FileTools
	shell  *ShellExec
	mem    *memory.Store
	chunks *chunker.Store
	web    *fetch.Fetcher
}

// NewRegistry constructs a Registry wired to files, shell, mem, and
// chunks, and registers the full builtin tool surface against them. Any
// of files/shell/mem/chunks may be nil or disabled; the corresponding
// tools then fail at execution time rather than at registration time, so
// Descriptors() always reports the same fixed tool surface. The web fetch
// tool needs no sandboxed resource of its own, so the Registry builds its
// own Fetcher.
func NewRegistry(files *FileTools, shell *ShellExec, mem *memory.Store, chunks *chunker.Store) *Registry {
	r := &Registry{
		tools:  make(map[string]*Tool),
		files:  files,
		shell:  shell,
		mem:    mem,
		chunks: chunks,
		web:    fetch.New(),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Descriptor.Name] = t
	r.order = append(r.order, t.Descriptor.Name)
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Descriptors returns every registered tool's descriptor, in
// registration order.
func (r *Registry) Descriptors() []agent.ToolDescriptor {
	out := make([]agent.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// Execute runs the named tool's handler. An unregistered name returns a
// failed ToolResult carrying ErrToolUnavailable's message.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) agent.ToolResult {
	t, ok := r.tools[name]
	if !ok {
		return agent.Fail((&ErrToolUnavailable{ToolName: name}).Error())
	}
	return t.Handler(ctx, args)
}

// Preamble returns the fixed text prefixed to the system prompt
// describing the inline tool-call convention and the registered tools,
// one line per tool.
func (r *Registry) Preamble() string {
	var b strings.Builder
	b.WriteString("You can call tools by emitting a JSON object of the form ")
	b.WriteString(`{"tool": "<name>", "arguments": {...}} anywhere in your reply. `)
	b.WriteString("Emit tool calls first, before any explanation, and you may emit multiple calls in a single reply. ")
	b.WriteString("Available tools:\n")
	for _, name := range r.order {
		d := r.tools[name].Descriptor
		b.WriteString(fmt.Sprintf("- %s: %s\n", d.Name, d.Description))
		for _, p := range d.Params {
			required := "optional"
			if p.Required {
				required = "required"
			}
			b.WriteString(fmt.Sprintf("    - %s (%s, %s): %s\n", p.Name, p.Type, required, p.Description))
		}
	}
	return b.String()
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (r *Registry) registerBuiltins() {
	r.registerShellTool()
	r.registerFileTools()
	r.registerMemoryTools()
	r.registerTaskTools()
	r.registerChunkTools()
	r.registerWebTools()
}

func (r *Registry) registerShellTool() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "shell",
			Description: "Run a shell command inside the sandboxed workspace and return its stdout/stderr.",
			Params: []agent.ToolParam{
				{Name: "command", Type: "string", Required: true, Description: "the command to run via sh -c"},
				{Name: "timeout_sec", Type: "integer", Description: "override the default timeout, capped at 5 minutes"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.shell == nil || !r.shell.Enabled() {
				return agent.Fail("shell execution is disabled")
			}
			command, ok := stringArg(args, "command")
			if !ok || command == "" {
				return agent.Fail("missing required argument: command")
			}
			res, err := r.shell.Exec(ctx, command, intArg(args, "timeout_sec", 0))
			if err != nil {
				return agent.Fail(err.Error())
			}
			var b strings.Builder
			if res.Stdout != "" {
				b.WriteString(res.Stdout)
			}
			if res.Stderr != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("[stderr]\n")
				b.WriteString(res.Stderr)
			}
			if res.TimedOut {
				return agent.Fail(fmt.Sprintf("command timed out; partial output:\n%s", b.String()))
			}
			if res.ExitCode != 0 {
				b.WriteString(fmt.Sprintf("\n[exit code %d]", res.ExitCode))
			}
			return agent.OK(b.String())
		},
	})
}

func (r *Registry) registerFileTools() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "read_file",
			Description: "Read a file from the sandboxed workspace, optionally by line range.",
			Params: []agent.ToolParam{
				{Name: "path", Type: "string", Required: true},
				{Name: "offset", Type: "integer", Description: "1-indexed starting line"},
				{Name: "limit", Type: "integer", Description: "maximum number of lines"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.files == nil || !r.files.Enabled() {
				return agent.Fail("file tools are disabled")
			}
			path, ok := stringArg(args, "path")
			if !ok || path == "" {
				return agent.Fail("missing required argument: path")
			}
			content, err := r.files.Read(ctx, path, intArg(args, "offset", 0), intArg(args, "limit", 0))
			if err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(content)
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "write_file",
			Description: "Write content to a file in the sandboxed workspace, creating parent directories as needed.",
			Params: []agent.ToolParam{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.files == nil || !r.files.Enabled() {
				return agent.Fail("file tools are disabled")
			}
			path, ok := stringArg(args, "path")
			if !ok || path == "" {
				return agent.Fail("missing required argument: path")
			}
			content, _ := stringArg(args, "content")
			if err := r.files.Write(ctx, path, content); err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "edit_file",
			Description: "Replace one unique occurrence of old_text with new_text in a file.",
			Params: []agent.ToolParam{
				{Name: "path", Type: "string", Required: true},
				{Name: "old_text", Type: "string", Required: true},
				{Name: "new_text", Type: "string", Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.files == nil || !r.files.Enabled() {
				return agent.Fail("file tools are disabled")
			}
			path, ok := stringArg(args, "path")
			if !ok || path == "" {
				return agent.Fail("missing required argument: path")
			}
			oldText, ok := stringArg(args, "old_text")
			if !ok {
				return agent.Fail("missing required argument: old_text")
			}
			newText, _ := stringArg(args, "new_text")
			if err := r.files.Edit(ctx, path, oldText, newText); err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(fmt.Sprintf("edited %s", path))
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "list_directory",
			Description: "List the entries of a directory in the sandboxed workspace.",
			Params: []agent.ToolParam{
				{Name: "path", Type: "string", Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.files == nil || !r.files.Enabled() {
				return agent.Fail("file tools are disabled")
			}
			path, ok := stringArg(args, "path")
			if !ok {
				path = "."
			}
			entries, err := r.files.List(ctx, path)
			if err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(strings.Join(entries, "\n"))
		},
	})
}

func (r *Registry) registerMemoryTools() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "memory_save",
			Description: "Persist a note to the Memory Store for later BM25 retrieval.",
			Params: []agent.ToolParam{
				{Name: "content", Type: "string", Required: true},
				{Name: "category", Type: "string", Description: "defaults to \"general\""},
				{Name: "tags", Type: "string", Description: "comma-separated"},
				{Name: "importance", Type: "integer", Description: "1-10, defaults to 5"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.mem == nil {
				return agent.Fail("memory store is unavailable")
			}
			content, ok := stringArg(args, "content")
			if !ok || content == "" {
				return agent.Fail("missing required argument: content")
			}
			category, _ := stringArg(args, "category")
			tags, _ := stringArg(args, "tags")
			entry, err := r.mem.SaveMemory(memory.Entry{
				Content:    content,
				Category:   category,
				Tags:       tags,
				Importance: intArg(args, "importance", 0),
			})
			if err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(fmt.Sprintf("saved memory %s", entry.ID))
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "memory_search",
			Description: "BM25-search stored memories by content/category/tags.",
			Params: []agent.ToolParam{
				{Name: "query", Type: "string", Required: true},
				{Name: "category", Type: "string"},
				{Name: "limit", Type: "integer", Description: "defaults to 20"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.mem == nil {
				return agent.Fail("memory store is unavailable")
			}
			query, ok := stringArg(args, "query")
			if !ok || query == "" {
				return agent.Fail("missing required argument: query")
			}
			category, _ := stringArg(args, "category")
			results, err := r.mem.SearchMemories(query, category, intArg(args, "limit", 0))
			if err != nil {
				return agent.Fail(err.Error())
			}
			if len(results) == 0 {
				return agent.OK("no matching memories")
			}
			var b strings.Builder
			for _, res := range results {
				b.WriteString(fmt.Sprintf("[%s] (score %.3f) %s\n", res.Entry.ID, res.Score, res.Snippet))
			}
			return agent.OK(strings.TrimSuffix(b.String(), "\n"))
		},
	})
}

func (r *Registry) registerTaskTools() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "task_create",
			Description: "Create a reminder or deferred task.",
			Params: []agent.ToolParam{
				{Name: "content", Type: "string", Required: true},
				{Name: "context", Type: "string"},
				{Name: "due_at_unix_ms", Type: "integer", Description: "0 means no due date"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.mem == nil {
				return agent.Fail("memory store is unavailable")
			}
			content, ok := stringArg(args, "content")
			if !ok || content == "" {
				return agent.Fail("missing required argument: content")
			}
			taskContext, _ := stringArg(args, "context")
			task, err := r.mem.SaveTask(memory.Task{
				Content: content,
				Context: taskContext,
				DueAt:   int64(intArg(args, "due_at_unix_ms", 0)),
			})
			if err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(fmt.Sprintf("created task %s", task.ID))
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "task_list",
			Description: "List tasks, optionally only incomplete ones.",
			Params: []agent.ToolParam{
				{Name: "incomplete_only", Type: "boolean", Description: "defaults to true"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.mem == nil {
				return agent.Fail("memory store is unavailable")
			}
			tasks, err := r.mem.ListTasks(boolArg(args, "incomplete_only", true))
			if err != nil {
				return agent.Fail(err.Error())
			}
			if len(tasks) == 0 {
				return agent.OK("no tasks")
			}
			var b strings.Builder
			for _, t := range tasks {
				status := "open"
				if t.Completed {
					status = "done"
				}
				b.WriteString(fmt.Sprintf("[%s] (%s) %s\n", t.ID, status, t.Content))
			}
			return agent.OK(strings.TrimSuffix(b.String(), "\n"))
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "task_complete",
			Description: "Mark a task as completed.",
			Params: []agent.ToolParam{
				{Name: "id", Type: "string", Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.mem == nil {
				return agent.Fail("memory store is unavailable")
			}
			id, ok := stringArg(args, "id")
			if !ok || id == "" {
				return agent.Fail("missing required argument: id")
			}
			if err := r.mem.CompleteTask(id); err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(fmt.Sprintf("completed task %s", id))
		},
	})
}

func (r *Registry) registerChunkTools() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "content_chunk",
			Description: "Fetch one chunk of previously chunked oversized tool output by index.",
			Params: []agent.ToolParam{
				{Name: "id", Type: "string", Required: true},
				{Name: "chunk", Type: "integer", Required: true},
				{Name: "clean_html", Type: "boolean", Description: "strip HTML tags from the chunk before returning it"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.chunks == nil {
				return agent.Fail("content chunker is unavailable")
			}
			id, ok := stringArg(args, "id")
			if !ok || id == "" {
				return agent.Fail("missing required argument: id")
			}
			chunk, err := r.chunks.GetChunk(id, intArg(args, "chunk", 0), boolArg(args, "clean_html", false))
			if err != nil {
				return agent.Fail(err.Error())
			}
			return agent.OK(chunk)
		},
	})

	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name:        "content_search",
			Description: "Search stored chunked content for a query, returning matches with surrounding context.",
			Params: []agent.ToolParam{
				{Name: "id", Type: "string", Description: "search one stored id; omit to search all stored content"},
				{Name: "query", Type: "string", Required: true},
				{Name: "context_chars", Type: "integer", Description: "defaults to 200"},
				{Name: "regex", Type: "boolean"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.chunks == nil {
				return agent.Fail("content chunker is unavailable")
			}
			query, ok := stringArg(args, "query")
			if !ok || query == "" {
				return agent.Fail("missing required argument: query")
			}
			contextChars := intArg(args, "context_chars", 200)
			useRegex := boolArg(args, "regex", false)

			var out string
			var err error
			if id, ok := stringArg(args, "id"); ok && id != "" {
				out, err = r.chunks.SearchWithChunks(id, query, contextChars, useRegex)
			} else {
				out, err = r.chunks.SearchAllChunks(query, contextChars, useRegex)
			}
			if err != nil {
				return agent.Fail(err.Error())
			}
			if out == "" {
				return agent.OK("no matches")
			}
			return agent.OK(out)
		},
	})
}

func (r *Registry) registerWebTools() {
	r.register(&Tool{
		Descriptor: agent.ToolDescriptor{
			Name: "web_fetch",
			Description: "Fetch a URL over HTTP GET and return its readable text content (HTML is stripped " +
				"of scripts/styles/nav/footer). Use this instead of shell curl/wget for reading web pages.",
			Params: []agent.ToolParam{
				{Name: "url", Type: "string", Required: true, Description: "must start with http:// or https://; scheme is added if missing"},
				{Name: "max_chars", Type: "integer", Description: "defaults to 50000"},
				{Name: "extract_links", Type: "boolean", Description: "also return every anchor's href/text pair found on the page"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) agent.ToolResult {
			if r.web == nil {
				return agent.Fail("web fetch is unavailable")
			}
			url, ok := stringArg(args, "url")
			if !ok || url == "" {
				return agent.Fail("missing required argument: url")
			}
			result, err := r.web.Fetch(ctx, url, intArg(args, "max_chars", 0), boolArg(args, "extract_links", false))
			if err != nil {
				return agent.Fail(err.Error())
			}
			out, err := json.Marshal(result)
			if err != nil {
				return agent.OK(fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Content))
			}
			return agent.OK(string(out))
		},
	})
}
