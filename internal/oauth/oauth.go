package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenRequestTimeout is the timeout for token exchange HTTP requests
const TokenRequestTimeout = 30 * time.Second

// Provider issues client credentials tokens. One token source is kept per
// resolved configuration so a batch run fetches a token once and reuses it
// until it expires.
type Provider struct {
	client *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewProvider creates a provider; nil client uses a client with TokenRequestTimeout
func NewProvider(client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: TokenRequestTimeout}
	}
	return &Provider{client: client, sources: make(map[string]oauth2.TokenSource)}
}

// Token returns a valid token for cfg, resolving {{var}} placeholders first
func (p *Provider) Token(cfg *types.OAuthConfig, vars []types.Variable) (*oauth2.Token, error) {
	conf := &clientcredentials.Config{
		TokenURL:     parser.Resolve(cfg.TokenURL, vars),
		ClientID:     parser.Resolve(cfg.ClientID, vars),
		ClientSecret: parser.Resolve(cfg.ClientSecret, vars),
	}
	for _, s := range cfg.Scopes {
		conf.Scopes = append(conf.Scopes, parser.Resolve(s, vars))
	}
	if conf.TokenURL == "" || conf.ClientID == "" {
		return nil, fmt.Errorf("oauth: token URL and client ID are required")
	}

	key := strings.Join([]string{conf.TokenURL, conf.ClientID, conf.ClientSecret, strings.Join(conf.Scopes, " ")}, "\x00")

	p.mu.Lock()
	src, ok := p.sources[key]
	if !ok {
		// The source outlives any single request, so it gets its own context
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.client)
		src = conf.TokenSource(ctx)
		p.sources[key] = src
	}
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: failed to obtain token: %w", err)
	}
	return tok, nil
}

// Authorize returns req with an Authorization header when cfg is set and the
// request does not already carry one. req itself is never modified.
func (p *Provider) Authorize(req *compiler.CompiledRequest, cfg *types.OAuthConfig, vars []types.Variable) (*compiler.CompiledRequest, error) {
	if cfg == nil || req.Header("Authorization") != "" {
		return req, nil
	}
	tok, err := p.Token(cfg, vars)
	if err != nil {
		return nil, err
	}
	return req.WithHeader("Authorization", tok.Type()+" "+tok.AccessToken), nil
}

// Reset drops all cached tokens
func (p *Provider) Reset() {
	p.mu.Lock()
	p.sources = make(map[string]oauth2.TokenSource)
	p.mu.Unlock()
}
