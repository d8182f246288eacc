// Package github provides the GitHub source: open pull requests the user
// authored or was asked to review, and open issues assigned to them.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/providers"
	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// Verify interface compliance
var _ providers.Source = (*Source)(nil)

const (
	// DefaultAPIURL is the public GitHub API. For GitHub Enterprise use https://<host>/api/v3.
	DefaultAPIURL = "https://api.github.com"
	// DefaultWebURL hosts the OAuth endpoints
	DefaultWebURL = "https://github.com"

	// FieldAPIURL overrides the API base URL per provider config
	FieldAPIURL = "api_url"

	perPage = 100
	// maxPages caps pagination; the search API stops at 1000 results
	maxPages = 10
)

// query is one search the source runs on every fetch
type query struct {
	name string
	q    string
}

// The review-requested and authored queries overlap when a user requests
// their own review; Base dedups the result.
var queries = []query{
	{name: "authored", q: "is:pr is:open author:@me archived:false"},
	{name: "review_requested", q: "is:pr is:open review-requested:@me archived:false"},
	{name: "assigned", q: "is:issue is:open assignee:@me archived:false"},
}

// Options configures the GitHub source
type Options struct {
	APIURL       string
	WebURL       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

// Source implements providers.Source for GitHub
type Source struct {
	opts   Options
	client *providers.APIClient
}

// New creates a GitHub source
func New(opts Options) *Source {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	opts.APIURL = strings.TrimSuffix(opts.APIURL, "/")
	opts.WebURL = strings.TrimSuffix(opts.WebURL, "/")
	return &Source{
		opts: opts,
		client: providers.NewAPIClient(domain.ProviderGitHub, opts.HTTPClient, map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": "2022-11-28",
		}),
	}
}

// Info returns the provider identity
func (s *Source) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: domain.ProviderGitHub, Name: "GitHub", Version: "1.0.0"}
}

// DefaultConfig is disabled with no folder until the user picks one
func (s *Source) DefaultConfig() domain.ProviderConfig {
	return domain.ProviderConfig{Enabled: false}
}

// OAuthConfig returns the GitHub OAuth app endpoints. GitHub has no RFC 7009
// revocation endpoint, so disconnecting only drops the local token.
func (s *Source) OAuthConfig() domain.OAuthConfig {
	return domain.OAuthConfig{
		AuthURL:      s.opts.WebURL + "/login/oauth/authorize",
		TokenURL:     s.opts.WebURL + "/login/oauth/access_token",
		ClientID:     s.opts.ClientID,
		ClientSecret: s.opts.ClientSecret,
		RedirectURL:  s.opts.RedirectURL,
		Scopes:       []string{"repo", "read:user"},
	}
}

func (s *Source) apiURL(cfg *domain.ProviderConfig) string {
	if u := cfg.String(FieldAPIURL); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return s.opts.APIURL
}

type user struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// FetchUser returns the account the token belongs to
func (s *Source) FetchUser(ctx context.Context, cfg *domain.ProviderConfig, token string) (*domain.UserProfile, error) {
	var u user
	if _, err := s.client.GetJSON(ctx, "github user", s.apiURL(cfg)+"/user", token, &u); err != nil {
		return nil, err
	}
	return &domain.UserProfile{
		ID:        strconv.FormatInt(u.ID, 10),
		Login:     u.Login,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}, nil
}

type searchResponse struct {
	TotalCount int           `json:"total_count"`
	Items      []*searchItem `json:"items"`
}

type searchItem struct {
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	State         string    `json:"state"`
	HTMLURL       string    `json:"html_url"`
	RepositoryURL string    `json:"repository_url"`
	Draft         bool      `json:"draft"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	User          *struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct {
		HTMLURL string `json:"html_url"`
	} `json:"pull_request"`
}

// Fetch runs every search query and maps the results
func (s *Source) Fetch(ctx context.Context, cfg *domain.ProviderConfig, token string) ([]*domain.BookmarkItem, error) {
	base := s.apiURL(cfg)
	var items []*domain.BookmarkItem
	for _, q := range queries {
		results, err := s.search(ctx, base, token, q)
		if err != nil {
			return nil, err
		}
		items = append(items, results...)
	}
	return items, nil
}

func (s *Source) search(ctx context.Context, base, token string, q query) ([]*domain.BookmarkItem, error) {
	var items []*domain.BookmarkItem
	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"q":        {q.q},
			"sort":     {"updated"},
			"order":    {"desc"},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}

		var resp searchResponse
		op := "github search " + q.name
		if _, err := s.client.GetJSON(ctx, op, base+"/search/issues?"+params.Encode(), token, &resp); err != nil {
			return nil, err
		}

		for _, it := range resp.Items {
			items = append(items, toItem(it, q.name))
		}
		if len(resp.Items) < perPage || len(items) >= resp.TotalCount {
			break
		}
	}
	return items, nil
}

// toItem maps a search hit. Issue and pull request ids share one namespace
// on GitHub; the kind prefix keeps the id readable.
func toItem(it *searchItem, queryName string) *domain.BookmarkItem {
	kind := "issue"
	if it.PullRequest != nil {
		kind = "pr"
	}
	repo := repoFromURL(it.RepositoryURL)

	labels := make([]string, 0, len(it.Labels))
	for _, l := range it.Labels {
		labels = append(labels, l.Name)
	}
	metadata := map[string]any{
		"type":       kind,
		"repository": repo,
		"number":     it.Number,
		"state":      it.State,
		"query":      queryName,
		"labels":     labels,
	}
	if it.User != nil {
		metadata["author"] = it.User.Login
	}
	if kind == "pr" {
		metadata["draft"] = it.Draft
	}

	return &domain.BookmarkItem{
		ID:           fmt.Sprintf("%s:%d", kind, it.ID),
		ProviderID:   domain.ProviderGitHub,
		Title:        fmt.Sprintf("%s#%d: %s", repo, it.Number, it.Title),
		URL:          it.HTMLURL,
		CreatedAt:    it.CreatedAt,
		UpdatedAt:    it.UpdatedAt,
		LastModified: it.UpdatedAt,
		Metadata:     metadata,
	}
}

// repoFromURL turns https://api.github.com/repos/owner/name into owner/name
func repoFromURL(repositoryURL string) string {
	_, after, ok := strings.Cut(repositoryURL, "/repos/")
	if !ok {
		return repositoryURL
	}
	return after
}

// Close releases idle connections
func (s *Source) Close() error {
	return s.client.Close()
}
