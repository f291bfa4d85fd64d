package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

// OAuth2Config is the client registration shared by the bundled providers.
// AuthURL and TokenURL override the provider endpoint.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client

	// AuthParams are added to every authorization URL.
	AuthParams map[string]string
}

// OAuth2Client performs the authorization code grant for one provider.
type OAuth2Client struct {
	name       string
	config     *oauth2.Config
	httpClient *http.Client
	authParams map[string]string
}

func NewOAuth2Client(name string, cfg OAuth2Config, endpoint oauth2.Endpoint, defaultScopes []string) *OAuth2Client {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &OAuth2Client{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		httpClient: client,
		authParams: cfg.AuthParams,
	}
}

func (c *OAuth2Client) Name() string {
	return c.name
}

func (c *OAuth2Client) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(c.config.Scopes, opts...)

	conf := *c.config
	conf.Scopes = cfg.Scopes

	var params []oauth2.AuthCodeOption
	for k, v := range c.authParams {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.S256ChallengeOption(cfg.CodeVerifier))
	}
	if cfg.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", cfg.Prompt))
	}
	return conf.AuthCodeURL(state, params...)
}

func (c *OAuth2Client) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)

	var params []oauth2.AuthCodeOption
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	tok, err := c.config.Exchange(c.withClient(ctx), code, params...)
	if err != nil {
		return nil, c.exchangeError(err)
	}
	if tok.AccessToken == "" {
		return nil, &ProviderError{Provider: c.name, Operation: "exchange", Code: "missing_access_token", Description: "missing access token"}
	}
	return TokenFromOAuth2(tok), nil
}

// GetJSON calls a provider API with the token and decodes the response into out.
func (c *OAuth2Client) GetJSON(ctx context.Context, token *Token, url string, out any) error {
	if token == nil || token.AccessToken == "" {
		return &ProviderError{Provider: c.name, Operation: "profile", Code: "missing_access_token", Description: "missing access token"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.config.Client(c.withClient(ctx), token.OAuth2()).Do(req)
	if err != nil {
		return &ProviderError{Provider: c.name, Operation: "profile", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Provider: c.name, Operation: "profile", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		perr := &ProviderError{Provider: c.name, Operation: "profile", Status: resp.StatusCode}
		var payload map[string]any
		if json.Unmarshal(body, &payload) == nil {
			perr.Raw = payload
			perr.Description = firstString(payload, "error_description", "message")
			perr.Code = firstString(payload, "error")
		}
		return perr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: c.name, Operation: "profile", Status: resp.StatusCode, Code: "invalid_response", Err: err}
	}
	return nil
}

func (c *OAuth2Client) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *OAuth2Client) exchangeError(err error) error {
	perr := &ProviderError{Provider: c.name, Operation: "exchange", Err: err}

	var rerr *oauth2.RetrieveError
	if goerrors.As(err, &rerr) {
		perr.Code = rerr.ErrorCode
		perr.Description = rerr.ErrorDescription
		if rerr.Response != nil {
			perr.Status = rerr.Response.StatusCode
		}
	}
	return perr
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
