// Package gitlab provides the GitLab source: open merge requests the user
// created, is assigned to or reviews, and open issues assigned to them.
package gitlab

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
	// DefaultBaseURL is gitlab.com. Self-managed instances set their own.
	DefaultBaseURL = "https://gitlab.com"

	// FieldBaseURL overrides the instance URL per provider config
	FieldBaseURL = "base_url"

	perPage  = 100
	maxPages = 20
)

// Options configures the GitLab source
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

// Source implements providers.Source for GitLab
type Source struct {
	opts   Options
	client *providers.APIClient
}

// New creates a GitLab source
func New(opts Options) *Source {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Source{
		opts:   opts,
		client: providers.NewAPIClient(domain.ProviderGitLab, opts.HTTPClient, nil),
	}
}

// Info returns the provider identity
func (s *Source) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: domain.ProviderGitLab, Name: "GitLab", Version: "1.0.0"}
}

// DefaultConfig is disabled with no folder until the user picks one
func (s *Source) DefaultConfig() domain.ProviderConfig {
	return domain.ProviderConfig{Enabled: false}
}

// OAuthConfig returns the instance's OAuth endpoints
func (s *Source) OAuthConfig() domain.OAuthConfig {
	return domain.OAuthConfig{
		AuthURL:      s.opts.BaseURL + "/oauth/authorize",
		TokenURL:     s.opts.BaseURL + "/oauth/token",
		RevokeURL:    s.opts.BaseURL + "/oauth/revoke",
		ClientID:     s.opts.ClientID,
		ClientSecret: s.opts.ClientSecret,
		RedirectURL:  s.opts.RedirectURL,
		Scopes:       []string{"read_api", "read_user"},
	}
}

func (s *Source) apiURL(cfg *domain.ProviderConfig) string {
	base := s.opts.BaseURL
	if u := cfg.String(FieldBaseURL); u != "" {
		base = strings.TrimSuffix(u, "/")
	}
	return base + "/api/v4"
}

type user struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// FetchUser returns the account the token belongs to
func (s *Source) FetchUser(ctx context.Context, cfg *domain.ProviderConfig, token string) (*domain.UserProfile, error) {
	u, err := s.currentUser(ctx, s.apiURL(cfg), token)
	if err != nil {
		return nil, err
	}
	return &domain.UserProfile{
		ID:        strconv.FormatInt(u.ID, 10),
		Login:     u.Username,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}, nil
}

func (s *Source) currentUser(ctx context.Context, api, token string) (*user, error) {
	var u user
	if _, err := s.client.GetJSON(ctx, "gitlab user", api+"/user", token, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type listing struct {
	name   string
	kind   string // "mr" or "issue"
	path   string
	params url.Values
}

// listings returns the queries for user. Reviewer filtering needs the
// numeric user id, so the user is resolved first.
func listings(userID int64) []listing {
	return []listing{
		{name: "created", kind: "mr", path: "/merge_requests", params: url.Values{"scope": {"created_by_me"}}},
		{name: "assigned", kind: "mr", path: "/merge_requests", params: url.Values{"scope": {"assigned_to_me"}}},
		{name: "reviewing", kind: "mr", path: "/merge_requests", params: url.Values{
			"scope":       {"all"},
			"reviewer_id": {strconv.FormatInt(userID, 10)},
		}},
		{name: "assigned_issues", kind: "issue", path: "/issues", params: url.Values{"scope": {"assigned_to_me"}}},
	}
}

type entry struct {
	ID        int64     `json:"id"`
	IID       int       `json:"iid"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	WebURL    string    `json:"web_url"`
	Draft     bool      `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Labels    []string  `json:"labels"`
	Author    *struct {
		Username string `json:"username"`
	} `json:"author"`
	References *struct {
		Full string `json:"full"`
	} `json:"references"`
}

// Fetch runs every listing and maps the results
func (s *Source) Fetch(ctx context.Context, cfg *domain.ProviderConfig, token string) ([]*domain.BookmarkItem, error) {
	api := s.apiURL(cfg)
	u, err := s.currentUser(ctx, api, token)
	if err != nil {
		return nil, err
	}

	var items []*domain.BookmarkItem
	for _, l := range listings(u.ID) {
		results, err := s.list(ctx, api, token, l)
		if err != nil {
			return nil, err
		}
		items = append(items, results...)
	}
	return items, nil
}

func (s *Source) list(ctx context.Context, api, token string, l listing) ([]*domain.BookmarkItem, error) {
	var items []*domain.BookmarkItem
	page := "1"
	for n := 0; n < maxPages && page != ""; n++ {
		params := url.Values{}
		for k, v := range l.params {
			params[k] = v
		}
		params.Set("state", "opened")
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", page)

		var entries []*entry
		header, err := s.client.GetJSON(ctx, "gitlab list "+l.name, api+l.path+"?"+params.Encode(), token, &entries)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			items = append(items, toItem(e, l))
		}
		page = header.Get("X-Next-Page")
	}
	return items, nil
}

// toItem maps a merge request or issue. GitLab numbers them in separate id
// spaces, so the kind prefix is part of the id.
func toItem(e *entry, l listing) *domain.BookmarkItem {
	ref := fmt.Sprintf("!%d", e.IID)
	if l.kind == "issue" {
		ref = fmt.Sprintf("#%d", e.IID)
	}
	if e.References != nil && e.References.Full != "" {
		ref = e.References.Full
	}

	metadata := map[string]any{
		"type":       l.kind,
		"project_id": e.ProjectID,
		"iid":        e.IID,
		"state":      e.State,
		"query":      l.name,
		"labels":     e.Labels,
		"reference":  ref,
	}
	if e.Author != nil {
		metadata["author"] = e.Author.Username
	}
	if l.kind == "mr" {
		metadata["draft"] = e.Draft
	}

	return &domain.BookmarkItem{
		ID:           fmt.Sprintf("%s:%d", l.kind, e.ID),
		ProviderID:   domain.ProviderGitLab,
		Title:        fmt.Sprintf("%s: %s", ref, e.Title),
		URL:          e.WebURL,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		LastModified: e.UpdatedAt,
		Metadata:     metadata,
	}
}

// Close releases idle connections
func (s *Source) Close() error {
	return s.client.Close()
}
