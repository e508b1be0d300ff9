package nominatim

import (
	"fmt"
	"net/http"

	"github.com/kilianp07/sosdispatch/auth"
	"github.com/kilianp07/sosdispatch/connectors"
)

func apply(name string, fn func(*Client)) connectors.Option {
	return func(g connectors.Geocoder) error {
		if c, ok := g.(*Client); ok {
			fn(c)
			return nil
		}
		return fmt.Errorf(connectors.ErrIncompatibleOption, name, "nominatim")
	}
}

// WithBaseURL points the client at another Nominatim-compatible server.
func WithBaseURL(u string) connectors.Option {
	return apply("WithBaseURL", func(c *Client) { c.baseURL = u })
}

// WithUserAgent sets the User-Agent header required by the public servers.
func WithUserAgent(ua string) connectors.Option {
	return apply("WithUserAgent", func(c *Client) { c.userAgent = ua })
}

// WithAuth attaches an OAuth2 bearer token to every request.
func WithAuth(cred *auth.ClientCred) connectors.Option {
	return apply("WithAuth", func(c *Client) { c.auth = cred })
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) connectors.Option {
	return apply("WithHTTPClient", func(c *Client) { c.http = h })
}

// WithCountryCodes restricts results to the given ISO 3166-1 codes, e.g. "in".
func WithCountryCodes(codes string) connectors.Option {
	return apply("WithCountryCodes", func(c *Client) { c.countries = codes })
}
