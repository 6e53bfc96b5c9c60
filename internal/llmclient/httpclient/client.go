package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// HookFunc is a function that can modify the request before it's sent
type HookFunc func(req *http.Request) error

// requestModifier wraps an http.RoundTripper to apply hooks to each request
type requestModifier struct {
	http.RoundTripper
	hooks []HookFunc
}

func (t *requestModifier) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request
	req = req.Clone(req.Context())
	for _, hook := range t.hooks {
		if err := hook(req); err != nil {
			return nil, err
		}
	}
	return t.RoundTripper.RoundTrip(req)
}

// BearerAuthHook sets the Authorization header for OpenAI-compatible providers.
func BearerAuthHook(apiKey string) HookFunc {
	return func(req *http.Request) error {
		if apiKey == "" {
			return fmt.Errorf("upstream api key is not configured")
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		return nil
	}
}

// UserAgentHook identifies the relay to the provider.
func UserAgentHook(userAgent string) HookFunc {
	return func(req *http.Request) error {
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		return nil
	}
}

// CreateHTTPClientWithProxy creates an HTTP client with proxy support
func CreateHTTPClientWithProxy(proxyURL string) *http.Client {
	if proxyURL == "" {
		return &http.Client{}
	}

	// Parse the proxy URL
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		logrus.Errorf("Failed to parse proxy URL %s: %v, using default client", proxyURL, err)
		return &http.Client{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, nil, proxy.Direct)
		if err != nil {
			logrus.Errorf("Failed to create SOCKS5 proxy dialer: %v, using default client", err)
			return &http.Client{}
		}
		dialContext, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return &http.Client{}
		}
		transport.Proxy = nil
		transport.DialContext = dialContext.DialContext
	default:
		logrus.Errorf("Unsupported proxy scheme %s, supported schemes are http, https, socks5", parsedURL.Scheme)
		return &http.Client{}
	}

	return &http.Client{
		Transport: transport,
	}
}

// CreateUpstreamClient builds the client used for chat completion streams.
// timeout bounds the whole exchange including the streamed body; zero disables it.
func CreateUpstreamClient(proxyURL string, timeout time.Duration, hooks ...HookFunc) *http.Client {
	return WithHooks(CreateHTTPClientWithProxy(proxyURL), timeout, hooks...)
}

// WithHooks sets the timeout on client and runs hooks ahead of its transport.
func WithHooks(client *http.Client, timeout time.Duration, hooks ...HookFunc) *http.Client {
	client.Timeout = timeout
	if len(hooks) == 0 {
		return client
	}
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &requestModifier{
		RoundTripper: transport,
		hooks:        hooks,
	}
	return client
}
