package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2/github"

	sk "github.com/panyam/secretkeeper"
)

// GithubVerifier exchanges a GitHub authorization code and reads the user
// from the REST api
type GithubVerifier struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's API.
	UserInfoURL string
}

var _ sk.ProviderVerifier = (*GithubVerifier)(nil)

func NewGithubVerifier(clientId, clientSecret, callbackUrl string) *GithubVerifier {
	return &GithubVerifier{
		BaseOAuth2:  NewBaseOAuth2(sk.ProviderGithub, clientId, clientSecret, callbackUrl, github.Endpoint, "read:user", "user:email"),
		UserInfoURL: "https://api.github.com/user",
	}
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

func (g *GithubVerifier) Verify(ctx context.Context, code string) (*sk.ExternalProfile, error) {
	token, err := g.exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sk.ErrProviderAuthFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed getting user info from github: %v", sk.ErrProviderAuthFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: github user endpoint returned %d", sk.ErrProviderAuthFailed, resp.StatusCode)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user info: %v", sk.ErrProviderAuthFailed, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: github user has no id", sk.ErrProviderAuthFailed)
	}
	return &sk.ExternalProfile{
		ExternalID:  strconv.FormatInt(user.ID, 10),
		DisplayName: user.Login,
		Email:       user.Email,
	}, nil
}
