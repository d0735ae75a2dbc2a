package httputil

import (
	"net/http"
	"net/url"
	"time"

	"feedsync/config"
)

const mediaTimeout = 60 * time.Second

type Clients struct {
	Feed  *http.Client // proxied when configured, for the feed source
	Media *http.Client // photo downloads
}

func NewClients(proxyCfg *config.ProxyConfig, feedTimeout time.Duration) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if feedTimeout <= 0 {
		feedTimeout = 2 * time.Minute
	}

	return &Clients{
		Feed: &http.Client{
			Timeout:   feedTimeout,
			Transport: transport,
		},
		Media: &http.Client{
			Timeout: mediaTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}
