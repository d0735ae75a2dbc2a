package httputil

import (
	"net/http"
	"testing"
	"time"

	"feedsync/config"
)

func TestNewClients(t *testing.T) {
	c := NewClients(&config.ProxyConfig{URL: "http://proxy.local:3128"}, 10*time.Second)
	if c.Feed.Timeout != 10*time.Second {
		t.Fatalf("expected feed timeout 10s, got %v", c.Feed.Timeout)
	}
	if c.Media.Timeout != mediaTimeout {
		t.Fatalf("expected media timeout %v, got %v", mediaTimeout, c.Media.Timeout)
	}

	tr, ok := c.Feed.Transport.(*http.Transport)
	if !ok || tr.Proxy == nil {
		t.Fatal("expected proxied feed transport")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://feeds.example.com/list.xml", nil)
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.Host != "proxy.local:3128" {
		t.Fatalf("unexpected proxy %v (%v)", u, err)
	}
}

func TestNewClients_Defaults(t *testing.T) {
	c := NewClients(&config.ProxyConfig{}, 0)
	if c.Feed.Timeout != 2*time.Minute {
		t.Fatalf("expected default feed timeout, got %v", c.Feed.Timeout)
	}
}
