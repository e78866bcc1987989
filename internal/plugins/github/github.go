// Package github implements the code-forge plugin.
//
// It handles the "gh" tool binary, scopes credentials to "owner/repo"
// resources, contributes the smart-protocol git routes, and implements two
// custom commands that the real CLI either lacks or would need interactive
// auth for: "discussion" (GraphQL-backed discussion listing) and
// "rate-limit" (remaining API quota).
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/delight-co/finest-grained-auth-proxy/internal/config"
	"github.com/delight-co/finest-grained-auth-proxy/internal/errors"
	"github.com/delight-co/finest-grained-auth-proxy/internal/gitproxy"
	"github.com/delight-co/finest-grained-auth-proxy/internal/masking"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

const (
	// PluginName is the config key for this plugin.
	PluginName = "github"

	// upstreamHost is the canonical upstream for git traffic.
	upstreamHost = "https://github.com"

	// gitUsername is the fixed Basic-auth userinfo name GitHub expects
	// when the password is a token.
	gitUsername = "x-access-token"
)

// TokenPatterns matches GitHub token shapes that may leak through upstream
// error messages.
var TokenPatterns = []string{
	`gh[pousr]_[A-Za-z0-9]{16,255}`,
	`github_pat_[A-Za-z0-9_]{22,255}`,
}

// credential is one validated entry from the config.
type credential struct {
	token    string
	account  string
	patterns []string
}

// Plugin is the code-forge plugin instance bound to its config slice.
type Plugin struct {
	creds       []credential
	masker      *masking.Masker
	httpTimeout time.Duration
	proxy       *gitproxy.Proxy
}

// New builds the plugin from its config slice. Every credential entry must
// carry a secret token.
func New(pc config.PluginConfig, masker *masking.Masker, httpTimeout time.Duration) (*Plugin, error) {
	creds := make([]credential, 0, len(pc.Credentials))
	for i, c := range pc.Credentials {
		if c.Secret == "" {
			return nil, errors.ConfigMalformed(
				fmt.Errorf("plugin %q credential %d is missing \"secret\"", PluginName, i))
		}
		creds = append(creds, credential{
			token:    c.Secret,
			account:  c.Account,
			patterns: c.Resources,
		})
	}

	p := &Plugin{
		creds:       creds,
		masker:      masker,
		httpTimeout: httpTimeout,
	}
	p.proxy = gitproxy.New(gitproxy.Config{
		Upstream:    upstreamHost,
		Username:    gitUsername,
		Select:      p.Select,
		Masker:      masker,
		HTTPTimeout: httpTimeout,
	})
	return p, nil
}

// Name implements plugins.Plugin.
func (p *Plugin) Name() string { return PluginName }

// Tools implements plugins.Plugin.
func (p *Plugin) Tools() []string { return []string{"gh"} }

// Select walks the ordered credential list and returns the envelope for the
// first entry with a matching resource pattern.
func (p *Plugin) Select(resource string) (*plugins.Envelope, bool) {
	for _, cred := range p.creds {
		for _, pat := range cred.patterns {
			if plugins.MatchResource(pat, resource) {
				return &plugins.Envelope{
					Env: map[string]string{
						"GH_TOKEN":  cred.token,
						"GH_PROMPT": "disabled",
					},
					Secret:  cred.token,
					Account: cred.account,
				}, true
			}
		}
	}
	return nil, false
}

// Routes contributes the smart-protocol trio under /git.
func (p *Plugin) Routes() []plugins.Route {
	handler := p.proxy.Handler()
	return []plugins.Route{
		{Method: http.MethodGet, Path: "/git/*gitpath", Handler: handler},
		{Method: http.MethodPost, Path: "/git/*gitpath", Handler: handler},
	}
}

// Commands implements plugins.Plugin.
func (p *Plugin) Commands() map[string]plugins.CommandHandler {
	return map[string]plugins.CommandHandler{
		"discussion": p.discussionCommand,
		"rate-limit": p.rateLimitCommand,
	}
}

// discussionEntry is the stdout row for "discussion list".
type discussionEntry struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	CreatedAt string `json:"createdAt"`
}

// discussionCommand lists repository discussions via the GraphQL API. The
// real CLI has no discussion support, so this never falls through.
func (p *Plugin) discussionCommand(ctx context.Context, req plugins.CommandRequest) (*plugins.CommandResult, error) {
	if len(req.Args) < 2 || req.Args[1] != "list" {
		return &plugins.CommandResult{
			ExitCode: 1,
			Stderr:   "usage: gh discussion list",
		}, nil
	}

	owner, name, ok := strings.Cut(req.Resource, "/")
	if !ok {
		return &plugins.CommandResult{
			ExitCode: 1,
			Stderr:   fmt.Sprintf("resource %q is not an owner/repo pair", req.Resource),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	var query struct {
		Repository struct {
			Discussions struct {
				Nodes []struct {
					Number int
					Title  string
					Author struct {
						Login string
					}
					CreatedAt time.Time
				}
			} `graphql:"discussions(first: 50, orderBy: {field: CREATED_AT, direction: DESC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(name),
	}

	client := githubv4.NewClient(p.apiClient(ctx, req.Envelope.Secret))
	if err := client.Query(ctx, &query, vars); err != nil {
		return &plugins.CommandResult{
			ExitCode: 1,
			Stderr:   p.masker.Mask(err.Error()),
		}, nil
	}

	entries := make([]discussionEntry, 0, len(query.Repository.Discussions.Nodes))
	for _, n := range query.Repository.Discussions.Nodes {
		entries = append(entries, discussionEntry{
			Number:    n.Number,
			Title:     n.Title,
			Author:    n.Author.Login,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return &plugins.CommandResult{ExitCode: 0, Stdout: string(out)}, nil
}

// rateLimitCommand reports the remaining core API quota for the selected
// credential.
func (p *Plugin) rateLimitCommand(ctx context.Context, req plugins.CommandRequest) (*plugins.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	client := gogithub.NewClient(nil).WithAuthToken(req.Envelope.Secret)
	limits, _, err := client.RateLimit.Get(ctx)
	if err != nil {
		return &plugins.CommandResult{
			ExitCode: 1,
			Stderr:   p.masker.Mask(err.Error()),
		}, nil
	}

	core := limits.GetCore()
	out, err := json.Marshal(map[string]interface{}{
		"limit":     core.Limit,
		"remaining": core.Remaining,
		"reset":     core.Reset.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return &plugins.CommandResult{ExitCode: 0, Stdout: string(out)}, nil
}

// Probe checks each configured token with a user lookup. Results preserve
// configuration order; failures never abort the sweep.
func (p *Plugin) Probe(ctx context.Context) []plugins.ProbeResult {
	results := make([]plugins.ProbeResult, len(p.creds))

	var g errgroup.Group
	for i, cred := range p.creds {
		i, cred := i, cred
		g.Go(func() error {
			results[i] = p.probeOne(ctx, cred)
			return nil
		})
	}
	g.Wait()

	return results
}

func (p *Plugin) probeOne(ctx context.Context, cred credential) plugins.ProbeResult {
	result := plugins.ProbeResult{
		Plugin:       PluginName,
		Account:      cred.account,
		MaskedSecret: masking.MaskSecret(cred.token),
	}

	ctx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	client := gogithub.NewClient(nil).WithAuthToken(cred.token)
	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		result.Valid = false
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			result.ErrorKind = errors.ErrCodeNoCredential
		} else {
			result.ErrorKind = errors.ErrCodeUpstreamUnavailable
		}
		return result
	}

	result.Valid = true
	result.Metadata = map[string]string{"login": user.GetLogin()}
	if email := user.GetEmail(); email != "" {
		result.Metadata["email"] = masking.MaskEmail(email)
	}
	return result
}

// apiClient builds an oauth2-authenticated client for the GraphQL API.
func (p *Plugin) apiClient(ctx context.Context, token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, src)
}
