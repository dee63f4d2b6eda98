// Package retrieval fetches paginated data from authorized HTTP data sources,
// caches the raw pages on disk and exposes each source kind as an LLM tool.
package retrieval

import (
	"fmt"

	"golang.org/x/oauth2"
)

const (
	quickBooksProduction = "https://quickbooks.api.intuit.com/v3/company/%s"
	quickBooksSandbox    = "https://sandbox-quickbooks.api.intuit.com/v3/company/%s"
)

// Connection is an entity's link to a data platform.
type Connection interface {
	IsAuthorized() bool
	EntityID() string
	PlatformName() string
	// AccessToken returns a valid token, or "" when none is available.
	AccessToken() string
}

// TokenConnection backs a Connection with an oauth2 token source. Refreshing
// tokens is the token source's business.
type TokenConnection struct {
	entityID string
	platform string
	source   oauth2.TokenSource
}

func NewTokenConnection(entityID, platform string, source oauth2.TokenSource) *TokenConnection {
	return &TokenConnection{entityID: entityID, platform: platform, source: source}
}

// NewStaticConnection wraps a fixed access token. An empty token is never authorized.
func NewStaticConnection(entityID, platform, accessToken string) *TokenConnection {
	return NewTokenConnection(entityID, platform, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func (c *TokenConnection) IsAuthorized() bool {
	return c.AccessToken() != ""
}

func (c *TokenConnection) EntityID() string     { return c.entityID }
func (c *TokenConnection) PlatformName() string { return c.platform }

func (c *TokenConnection) AccessToken() string {
	if c.source == nil {
		return ""
	}
	tok, err := c.source.Token()
	if err != nil || !tok.Valid() {
		return ""
	}
	return tok.AccessToken
}

// QuickBooksBaseURL returns the company API root for a realm.
func QuickBooksBaseURL(realmID string, sandbox bool) string {
	if sandbox {
		return fmt.Sprintf(quickBooksSandbox, realmID)
	}
	return fmt.Sprintf(quickBooksProduction, realmID)
}
