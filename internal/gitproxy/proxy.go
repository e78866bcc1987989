// Package gitproxy implements the smart-protocol HTTP reverse proxy.
//
// It handles the three endpoints of the git smart remote protocol:
//
//	GET  {owner}/{repo}.git/info/refs?service=git-upload-pack|git-receive-pack
//	POST {owner}/{repo}.git/git-upload-pack
//	POST {owner}/{repo}.git/git-receive-pack
//
// Every other sub-path is rejected with NOT_SUPPORTED; that covers large-file
// extensions and anything else a client might probe for.
//
// This is the only code path where a credential crosses a network boundary.
// The inbound Authorization header is always stripped and replaced with a
// Basic header built from the credential selected for the URL's owner/repo
// resource. Pack bodies are streamed both ways, never buffered in full.
package gitproxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/delight-co/finest-grained-auth-proxy/internal/errors"
	"github.com/delight-co/finest-grained-auth-proxy/internal/logger"
	"github.com/delight-co/finest-grained-auth-proxy/internal/masking"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// requestHeaders are the inbound headers meaningful to the smart protocol.
var requestHeaders = []string{
	"Content-Type",
	"Accept",
	"User-Agent",
	"Content-Encoding",
	"Git-Protocol",
}

// responseHeaders are copied back to the caller unchanged.
var responseHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"Cache-Control",
}

// Selector resolves a credential envelope for an owner/repo resource.
type Selector func(resource string) (*plugins.Envelope, bool)

// Config configures one proxy instance.
type Config struct {
	// Upstream is the canonical upstream base URL, e.g. "https://github.com".
	Upstream string

	// Username is the fixed Basic-auth userinfo name the upstream expects
	// alongside the token.
	Username string

	// Select picks the credential for an owner/repo resource.
	Select Selector

	// Masker scrubs diagnostics before they leave the process.
	Masker *masking.Masker

	// HTTPTimeout bounds the ref advertisement exchange and the time to
	// first response header on pack transfers. Pack bodies stream without
	// an overall deadline.
	HTTPTimeout time.Duration
}

// Proxy forwards smart-protocol traffic to the upstream with credential
// rewriting. The outbound connection pool is shared across requests.
type Proxy struct {
	cfg    Config
	client *http.Client
}

// New creates a proxy with its own pooled transport.
func New(cfg Config) *Proxy {
	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.HTTPTimeout,
	}
	return &Proxy{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

// Handler returns the gin handler for /git/*gitpath. The same handler serves
// GET and POST; method/sub-path validation happens inside.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		owner, name, subpath, ok := splitGitPath(c.Param("gitpath"))
		if !ok {
			errors.AbortWithError(c, errors.NotSupported("Not a smart-protocol repository path"))
			return
		}
		resource := owner + "/" + name

		service, err := validateEndpoint(c.Request.Method, subpath, c.Query("service"))
		if err != nil {
			errors.AbortWithError(c, err)
			return
		}

		envelope, found := p.cfg.Select(resource)
		if !found {
			errors.AbortWithError(c, errors.NoCredential(resource))
			return
		}

		status, upErr := p.forward(c, resource, subpath, envelope)

		log := logger.GitProxy()
		entry := log.Info()
		if upErr != nil {
			entry = log.Warn()
		}
		entry.
			Str("resource", resource).
			Str("service", service).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("git request proxied")

		if upErr != nil {
			errors.AbortWithError(c, upErr)
		}
	}
}

// forward performs the upstream exchange and streams the response back.
// It returns the upstream status code, or an AppError on network failure.
func (p *Proxy) forward(c *gin.Context, resource, subpath string, envelope *plugins.Envelope) (int, *errors.AppError) {
	ctx := c.Request.Context()
	if subpath == "info/refs" {
		// Ref advertisement is small; bound the whole exchange.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.HTTPTimeout)
		defer cancel()
	}

	target := fmt.Sprintf("%s/%s.git/%s", p.cfg.Upstream, resource, subpath)
	if raw := c.Request.URL.RawQuery; raw != "" {
		target += "?" + raw
	}

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, target, c.Request.Body)
	if err != nil {
		return 0, errors.UpstreamUnavailable(err)
	}

	for _, h := range requestHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	// Whatever the sandbox sent, the upstream sees only our credential.
	req.Header.Del("Authorization")
	req.SetBasicAuth(p.cfg.Username, envelope.Secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errors.UpstreamUnavailable(
			fmt.Errorf("%s", p.cfg.Masker.Mask(err.Error())))
	}
	defer resp.Body.Close()

	for _, h := range responseHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Headers are already written; all we can do is log and drop.
		logger.GitProxy().Warn().
			Str("resource", resource).
			Str("error", p.cfg.Masker.Mask(err.Error())).
			Msg("response stream interrupted")
	}
	return resp.StatusCode, nil
}

// splitGitPath parses "/{owner}/{repo}.git/{subpath}" from the wildcard
// parameter. ok is false when the shape is not a .git repository path.
func splitGitPath(gitpath string) (owner, name, subpath string, ok bool) {
	trimmed := strings.TrimPrefix(gitpath, "/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 3 {
		return "", "", "", false
	}
	owner = parts[0]
	name = strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" || name == parts[1] {
		return "", "", "", false
	}
	return owner, name, parts[2], true
}

// validateEndpoint restricts traffic to the smart-protocol trio and returns
// the service name for the audit entry.
func validateEndpoint(method, subpath, serviceQuery string) (string, *errors.AppError) {
	switch {
	case method == http.MethodGet && subpath == "info/refs":
		if serviceQuery != "git-upload-pack" && serviceQuery != "git-receive-pack" {
			return "", errors.NotSupported(fmt.Sprintf("Unsupported service %q", serviceQuery))
		}
		return serviceQuery, nil
	case method == http.MethodPost && subpath == "git-upload-pack":
		return "git-upload-pack", nil
	case method == http.MethodPost && subpath == "git-receive-pack":
		return "git-receive-pack", nil
	default:
		return "", errors.NotSupported(fmt.Sprintf("Unsupported git endpoint %q", subpath))
	}
}
