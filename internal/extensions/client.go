package extensions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tlongwell-block/goose/pkg/models"
)

const defaultCallTimeout = 30 * time.Second

// client is the seam the manager dispatches through; satisfied by the
// stdio implementation and by test fakes.
type client interface {
	Connect(ctx context.Context) error
	Close() error
	Instructions() string
	Tools() []models.Tool
	SupportsResources() bool
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error)
	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) ([]ResourceContent, error)
	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error)
	Notifications() <-chan models.JSONRPCMessage
}

// stdioClient runs one extension as a subprocess and speaks line-delimited
// JSON-RPC over its stdio.
type stdioClient struct {
	config ExtensionConfig
	logger *slog.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	stderr  io.ReadCloser

	pending   map[int64]chan models.JSONRPCMessage
	pendingMu sync.Mutex
	notifs    chan models.JSONRPCMessage
	nextID    atomic.Int64

	mu           sync.RWMutex
	tools        []models.Tool
	capabilities Capabilities
	instructions string

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// newStdioClient creates a client for the given stdio extension.
func newStdioClient(cfg ExtensionConfig, logger *slog.Logger) *stdioClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &stdioClient{
		config:   cfg,
		logger:   logger.With("extension", cfg.Name),
		pending:  make(map[int64]chan models.JSONRPCMessage),
		notifs:   make(chan models.JSONRPCMessage, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect starts the subprocess, initializes the session, and caches the
// tool list.
func (c *stdioClient) Connect(ctx context.Context) error {
	c.process = exec.Command(c.config.Command, c.config.Args...)
	c.process.Env = os.Environ()
	for k, v := range c.config.Env {
		c.process.Env = append(c.process.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if c.config.WorkDir != "" {
		c.process.Dir = c.config.WorkDir
	}

	var err error
	c.stdin, err = c.process.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := c.process.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	c.stdout = bufio.NewScanner(stdout)
	c.stdout.Buffer(make([]byte, 1024*1024), 1024*1024)
	c.stderr, _ = c.process.StderrPipe()

	if err := c.process.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop()
	if c.stderr != nil {
		c.wg.Add(1)
		go c.logStderr()
	}

	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "goose", "version": "1.0.0"},
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.capabilities = initResult.Capabilities
	c.instructions = initResult.Instructions
	c.mu.Unlock()

	if err := c.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.refreshTools(ctx); err != nil {
		c.logger.Warn("failed to list tools", "error", err)
	}

	c.logger.Info("started extension",
		"server", initResult.ServerInfo.Name,
		"pid", c.process.Process.Pid)
	return nil
}

// Close stops the subprocess and joins the reader goroutines.
func (c *stdioClient) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	close(c.stopChan)
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.process != nil && c.process.Process != nil {
		c.process.Process.Kill()
	}
	c.wg.Wait()
	return nil
}

// Instructions returns the server-provided instructions, if any.
func (c *stdioClient) Instructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instructions
}

// Tools returns the cached tool list.
func (c *stdioClient) Tools() []models.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// SupportsResources reports whether the server advertises resources.
func (c *stdioClient) SupportsResources() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities.Resources != nil
}

// Notifications returns the stream of server notifications.
func (c *stdioClient) Notifications() <-chan models.JSONRPCMessage {
	return c.notifs
}

func (c *stdioClient) refreshTools(ctx context.Context) error {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("parse tools: %w", err)
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// CallTool calls a tool by its unprefixed name.
func (c *stdioClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	result, err := c.call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var callResult CallToolResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// ListResources lists the server's resources.
func (c *stdioClient) ListResources(ctx context.Context) ([]Resource, error) {
	result, err := c.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var resp ListResourcesResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	return resp.Resources, nil
}

// ReadResource reads a resource by uri.
func (c *stdioClient) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	result, err := c.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var resp ReadResourceResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse resource: %w", err)
	}
	return resp.Contents, nil
}

// ListPrompts lists the server's prompt templates.
func (c *stdioClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	result, err := c.call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var resp ListPromptsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	return resp.Prompts, nil
}

// GetPrompt renders a prompt template.
func (c *stdioClient) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var resp GetPromptResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse prompt: %w", err)
	}
	return &resp, nil
}

func (c *stdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("extension %s not connected", c.config.Name)
	}

	id := c.nextID.Add(1)
	idRaw, _ := json.Marshal(id)
	req := models.JSONRPCMessage{JSONRPC: "2.0", ID: idRaw, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan models.JSONRPCMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, _ := json.Marshal(req)
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("extension error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-c.stopChan:
		return nil, fmt.Errorf("extension closed")
	}
}

func (c *stdioClient) notify(method string, params any) error {
	msg := models.JSONRPCMessage{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return err
		}
		msg.Params = paramsJSON
	}
	data, _ := json.Marshal(msg)
	_, err := c.stdin.Write(append(data, '\n'))
	return err
}

func (c *stdioClient) readLoop() {
	defer c.wg.Done()
	defer c.connected.Store(false)

	for c.stdout.Scan() {
		select {
		case <-c.stopChan:
			return
		default:
		}

		line := c.stdout.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg models.JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn("discarding unparseable message", "error", err)
			continue
		}

		if msg.IsNotification() {
			select {
			case c.notifs <- msg:
			default:
				c.logger.Warn("notification channel full, dropping")
			}
			continue
		}

		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			c.logger.Warn("unexpected response id", "id", string(msg.ID))
			continue
		}

		c.pendingMu.Lock()
		if ch, ok := c.pending[id]; ok {
			select {
			case ch <- msg:
			default:
			}
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	}
}

func (c *stdioClient) logStderr() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		select {
		case <-c.stopChan:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			c.logger.Debug("extension stderr", "message", line)
		}
	}
}
