// Package gsuite implements the productivity-suite plugin.
//
// It handles the "gam" tool binary. Resources are opaque account tags
// ("default" is allowed), and each credential entry carries an OAuth
// refresh-token triple that is injected into the child environment. The
// health probe exchanges the refresh token for an access token against the
// Google endpoint and fetches the account's userinfo.
package gsuite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"github.com/delight-co/finest-grained-auth-proxy/internal/config"
	"github.com/delight-co/finest-grained-auth-proxy/internal/errors"
	"github.com/delight-co/finest-grained-auth-proxy/internal/masking"
	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// PluginName is the config key for this plugin.
const PluginName = "gsuite"

// userinfoURL is the cheap authenticated endpoint used by the health probe.
const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// TokenPatterns matches Google token shapes that may leak through upstream
// error messages.
var TokenPatterns = []string{
	`ya29\.[A-Za-z0-9_\-\.]{20,}`,
	`1//[A-Za-z0-9_\-]{20,}`,
}

// credential is one validated refresh-token triple from the config.
type credential struct {
	clientID     string
	clientSecret string
	refreshToken string
	account      string
	patterns     []string
}

// Plugin is the productivity-suite plugin instance bound to its config
// slice.
type Plugin struct {
	creds       []credential
	masker      *masking.Masker
	httpTimeout time.Duration
}

// New builds the plugin from its config slice. Every credential entry must
// carry the full refresh-token triple.
func New(pc config.PluginConfig, masker *masking.Masker, httpTimeout time.Duration) (*Plugin, error) {
	creds := make([]credential, 0, len(pc.Credentials))
	for i, c := range pc.Credentials {
		if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
			return nil, errors.ConfigMalformed(fmt.Errorf(
				"plugin %q credential %d needs \"client_id\", \"client_secret\" and \"refresh_token\"",
				PluginName, i))
		}
		creds = append(creds, credential{
			clientID:     c.ClientID,
			clientSecret: c.ClientSecret,
			refreshToken: c.RefreshToken,
			account:      c.Account,
			patterns:     c.Resources,
		})
	}
	return &Plugin{creds: creds, masker: masker, httpTimeout: httpTimeout}, nil
}

// Name implements plugins.Plugin.
func (p *Plugin) Name() string { return PluginName }

// Tools implements plugins.Plugin.
func (p *Plugin) Tools() []string { return []string{"gam"} }

// Select walks the ordered credential list and returns the envelope for the
// first entry with a matching resource pattern.
func (p *Plugin) Select(resource string) (*plugins.Envelope, bool) {
	for _, cred := range p.creds {
		for _, pat := range cred.patterns {
			if plugins.MatchResource(pat, resource) {
				return &plugins.Envelope{
					Env: map[string]string{
						"GAM_CLIENT_ID":     cred.clientID,
						"GAM_CLIENT_SECRET": cred.clientSecret,
						"GAM_REFRESH_TOKEN": cred.refreshToken,
					},
					Secret:  cred.refreshToken,
					Account: cred.account,
				}, true
			}
		}
	}
	return nil, false
}

// Routes implements plugins.Plugin. The productivity suite has no HTTP
// proxy surface.
func (p *Plugin) Routes() []plugins.Route { return nil }

// Commands implements plugins.Plugin.
func (p *Plugin) Commands() map[string]plugins.CommandHandler {
	return map[string]plugins.CommandHandler{
		"oauth": p.oauthCommand,
	}
}

// oauthCommand reports the selected credential in masked form. "gam oauth"
// subcommands other than "info" fall through to the real CLI.
func (p *Plugin) oauthCommand(ctx context.Context, req plugins.CommandRequest) (*plugins.CommandResult, error) {
	if len(req.Args) < 2 || req.Args[1] != "info" {
		return nil, plugins.ErrDeclined
	}

	out, err := json.Marshal(map[string]string{
		"account":       req.Envelope.Account,
		"client_id":     req.Envelope.Env["GAM_CLIENT_ID"],
		"refresh_token": masking.MaskSecret(req.Envelope.Env["GAM_REFRESH_TOKEN"]),
	})
	if err != nil {
		return nil, err
	}
	return &plugins.CommandResult{ExitCode: 0, Stdout: string(out)}, nil
}

// Probe exchanges each refresh token for an access token and fetches
// userinfo. Results preserve configuration order.
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
		MaskedSecret: masking.MaskSecret(cred.refreshToken),
	}

	ctx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     cred.clientID,
		ClientSecret: cred.clientSecret,
		Endpoint:     google.Endpoint,
	}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.refreshToken})
	if _, err := src.Token(); err != nil {
		result.Valid = false
		result.ErrorKind = errors.ErrCodeNoCredential
		return result
	}

	client := oauth2.NewClient(ctx, src)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		result.Valid = false
		result.ErrorKind = errors.ErrCodeUpstreamUnavailable
		return result
	}
	defer resp.Body.Close()

	var info struct {
		Email string `json:"email"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &info) != nil {
		result.Valid = false
		result.ErrorKind = errors.ErrCodeUpstreamUnavailable
		return result
	}

	result.Valid = true
	if info.Email != "" {
		result.Metadata = map[string]string{"email": masking.MaskEmail(info.Email)}
	}
	return result
}
