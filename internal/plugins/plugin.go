// Package plugins defines the plugin capability set and the plugin registry.
//
// A plugin owns one or more tool binaries (e.g. "gh"), knows how to select a
// credential for a resource, and may contribute custom HTTP routes, custom
// commands that short-circuit subprocess execution, and a credential health
// probe. The registry is a static table built once at startup; no dynamic
// loading is involved.
package plugins

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

// ErrDeclined is the sentinel a custom-command handler returns to decline a
// command, causing the router to fall through to subprocess execution. Any
// other return is final.
var ErrDeclined = errors.New("custom command declined")

// Envelope carries the credential material selected for one request.
//
// It never leaves the proxy process: only derived artifacts do (the
// subprocess environment overlay, the outbound Authorization header).
// It must never be logged or serialized into a response body.
type Envelope struct {
	// Env is the environment overlay injected into the child process.
	// Overlay wins over the parent environment on key collision.
	Env map[string]string

	// Secret is the primary secret, used for authorization-header
	// construction on HTTP-proxy routes.
	Secret string

	// Account is an optional display label from the credential entry.
	Account string
}

// CommandResult mirrors the /cli response body: the outcome of either a
// subprocess run or a custom-command handler.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// CommandRequest is the input to a custom-command handler.
type CommandRequest struct {
	Tool     string
	Args     []string
	Resource string
	Envelope *Envelope
}

// CommandHandler handles one custom command. Returning ErrDeclined causes
// fallthrough to the subprocess executor; any other return is final.
type CommandHandler func(ctx context.Context, req CommandRequest) (*CommandResult, error)

// Route is a custom HTTP route contributed by a plugin.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// ProbeResult reports the health of one configured credential.
type ProbeResult struct {
	Plugin       string            `json:"plugin"`
	Account      string            `json:"account,omitempty"`
	Valid        bool              `json:"valid"`
	MaskedSecret string            `json:"masked_secret"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
}

// Plugin is the capability set every built-in plugin implements.
type Plugin interface {
	// Name is the unique plugin name, matching its config key.
	Name() string

	// Tools is the set of tool-binary names this plugin handles.
	// Tool sets must be pairwise disjoint across plugins.
	Tools() []string

	// Select walks the plugin's ordered credential list and returns the
	// envelope for the first entry whose pattern list matches resource,
	// or false if no entry matches. Select never blocks.
	Select(resource string) (*Envelope, bool)

	// Commands maps custom-command names (matched against args[0]) to
	// their handlers.
	Commands() map[string]CommandHandler

	// Routes lists custom HTTP routes to mount on the router.
	Routes() []Route

	// Probe checks each configured credential with a cheap authenticated
	// upstream call. Results preserve configuration order. Probe failures
	// are reported in the result, never as an error.
	Probe(ctx context.Context) []ProbeResult
}
