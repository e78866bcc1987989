// Package handlers provides the HTTP request handlers for the auth proxy.
//
// This file implements POST /cli, the command lifecycle entry point.
//
// Control flow for one invocation:
//  1. Resolve the plugin for the requested tool; absence is UNKNOWN_TOOL.
//  2. Select a credential for the resource; absence is NO_CREDENTIAL.
//  3. Consult the plugin's custom-command map keyed by args[0]. A handler
//     may return a final result or decline, causing fallthrough.
//  4. Run the real CLI through the subprocess executor with the envelope's
//     environment overlay.
//
// Every path records one audit entry with the masked argument vector and
// never the credential or raw output.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/delight-co/finest-grained-auth-proxy/internal/errors"
	"github.com/delight-co/finest-grained-auth-proxy/internal/executor"
	"github.com/delight-co/finest-grained-auth-proxy/internal/logger"
	"github.com/delight-co/finest-grained-auth-proxy/internal/masking"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// CLIRequest is the wire contract wrappers speak to the proxy.
//
// The proxy never trusts wrapper-provided secrets; any secret-bearing field
// a wrapper might add is simply not part of this struct and is dropped on
// decode.
type CLIRequest struct {
	Tool     string   `json:"tool"`
	Args     []string `json:"args"`
	Resource string   `json:"resource"`
}

// CLIHandler dispatches tool invocations.
type CLIHandler struct {
	registry *plugins.Registry
	executor *executor.Executor
	masker   *masking.Masker
}

// NewCLIHandler creates the /cli handler.
func NewCLIHandler(registry *plugins.Registry, exec *executor.Executor, masker *masking.Masker) *CLIHandler {
	return &CLIHandler{
		registry: registry,
		executor: exec,
		masker:   masker,
	}
}

// HandleCLI handles POST /cli.
//
// The response is 200 with {exit_code, stdout, stderr} on every successful
// dispatch regardless of the subprocess exit code; 4xx/5xx is reserved for
// dispatch failures.
func (h *CLIHandler) HandleCLI(c *gin.Context) {
	start := time.Now()

	var req CLIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.audit(req, "bad_request", 0, start)
		apperrors.AbortWithError(c, apperrors.BadRequest("Malformed request body: "+err.Error()))
		return
	}
	if req.Tool == "" {
		h.audit(req, "bad_request", 0, start)
		apperrors.AbortWithError(c, apperrors.BadRequest("Missing \"tool\""))
		return
	}
	if req.Resource == "" {
		h.audit(req, "bad_request", 0, start)
		apperrors.AbortWithError(c, apperrors.BadRequest("Missing \"resource\""))
		return
	}
	if req.Args == nil {
		req.Args = []string{}
	}

	plugin, ok := h.registry.ByTool(req.Tool)
	if !ok {
		h.audit(req, "unknown_tool", 0, start)
		apperrors.AbortWithError(c, apperrors.UnknownTool(req.Tool))
		return
	}

	envelope, ok := plugin.Select(req.Resource)
	if !ok {
		h.audit(req, "no_credential", 0, start)
		apperrors.AbortWithError(c, apperrors.NoCredential(req.Resource))
		return
	}

	// Custom commands may short-circuit before any subprocess is spawned.
	if len(req.Args) > 0 {
		if handler, exists := plugin.Commands()[req.Args[0]]; exists {
			result, err := handler(c.Request.Context(), plugins.CommandRequest{
				Tool:     req.Tool,
				Args:     req.Args,
				Resource: req.Resource,
				Envelope: envelope,
			})
			switch {
			case errors.Is(err, plugins.ErrDeclined):
				// Fall through to the executor.
			case err != nil:
				h.audit(req, "command_error", 0, start)
				apperrors.AbortWithError(c,
					apperrors.InternalServer(h.masker.Mask(err.Error())))
				return
			default:
				h.audit(req, "custom_command", result.ExitCode, start)
				h.respond(c, result)
				return
			}
		}
	}

	result, err := h.executor.Run(c.Request.Context(), req.Tool, req.Args, envelope.Env)
	if err != nil {
		// The caller disconnected; the child has been reaped. There is
		// nobody left to answer, but gin wants a status.
		h.audit(req, "canceled", -1, start)
		c.Status(http.StatusRequestTimeout)
		return
	}

	h.audit(req, "subprocess", result.ExitCode, start)
	h.respond(c, &plugins.CommandResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	})
}

// respond serializes a command result with output masking applied.
func (h *CLIHandler) respond(c *gin.Context, result *plugins.CommandResult) {
	c.JSON(http.StatusOK, plugins.CommandResult{
		ExitCode: result.ExitCode,
		Stdout:   h.masker.Mask(result.Stdout),
		Stderr:   h.masker.Mask(result.Stderr),
	})
}

// audit records one entry per dispatch. Arguments are masked; credentials
// and raw output never appear.
func (h *CLIHandler) audit(req CLIRequest, outcome string, exitCode int, start time.Time) {
	logger.Audit().Info().
		Str("tool", req.Tool).
		Str("resource", req.Resource).
		Strs("argv", h.masker.MaskAll(req.Args)).
		Str("outcome", outcome).
		Int("exit_code", exitCode).
		Dur("duration", time.Since(start)).
		Msg("cli dispatch")
}
