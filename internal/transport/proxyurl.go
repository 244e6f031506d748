package transport

import (
	"fmt"
	"net/url"
)

func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid proxy URL %q: %w", raw, err)
	}
	return u, nil
}
