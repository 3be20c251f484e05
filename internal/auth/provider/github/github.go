package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"identity-service/internal/auth"
	"identity-service/internal/logger"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const (
	providerName   = "github"
	defaultAPIBase = "https://api.github.com"
)

// Provider implements the GitHub OAuth app flow. GitHub has no ID token, so
// the assertion is assembled from the REST user and emails endpoints.
type Provider struct {
	oauthConfig *oauth2.Config
	apiBase     string
}

func New(clientID, clientSecret, redirectURL string) (*Provider, error) {
	return newProvider(clientID, clientSecret, redirectURL, githuboauth.Endpoint, defaultAPIBase)
}

func newProvider(
	clientID string,
	clientSecret string,
	redirectURL string,
	endpoint oauth2.Endpoint,
	apiBase string,
) (*Provider, error) {

	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("github oauth config missing required fields")
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: strings.TrimRight(apiBase, "/"),
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type user struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Assertion, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("github token exchange failed: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)

	var u user
	if err := p.get(ctx, client, "/user", &u); err != nil {
		return nil, err
	}

	var emails []email
	if err := p.get(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}

	a, err := assertionFrom(u, emails)
	if err != nil {
		return nil, err
	}

	logger.Info("github profile fetched", map[string]any{
		"login":          u.Login,
		"email_present":  a.Email != "",
		"email_verified": a.InfoFlag("verified"),
		"emails":         len(emails),
	})

	return a, nil
}

// assertionFrom takes email and verified flag from the primary email record.
// The profile email is a fallback and is never treated as verified.
func assertionFrom(u user, emails []email) (*auth.Assertion, error) {
	if u.ID == 0 {
		return nil, errors.New("github user has no id")
	}

	addr, verified := u.Email, false
	for _, e := range emails {
		if e.Primary {
			addr, verified = e.Email, e.Verified
			break
		}
	}
	if addr == "" {
		return nil, errors.New("github account has no email")
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}

	return &auth.Assertion{
		Provider:  providerName,
		UID:       strconv.FormatInt(u.ID, 10),
		Email:     addr,
		Name:      name,
		AvatarURL: u.AvatarURL,
		Info: map[string]any{
			"login":    u.Login,
			"verified": verified,
		},
	}, nil
}

func (p *Provider) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github %s decode failed: %w", path, err)
	}
	return nil
}
