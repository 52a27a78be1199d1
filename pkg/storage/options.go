package storage

import (
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults applied by Normalize.
const (
	DefaultProtocol        = "https://"
	DefaultAPIVersion      = "2014-06-15"
	DefaultSignedURLMaxAge = 600
	DefaultMaxSockets      = 100
	DefaultUserAgent       = "cloudkit/dev"
)

// Environment variables holding the default socket ceiling per protocol.
const (
	EnvHTTPSMaxSockets = "CLOUDKIT_HTTPS_MAX_SOCKETS"
	EnvHTTPMaxSockets  = "CLOUDKIT_HTTP_MAX_SOCKETS"
)

// Options is the construction configuration shared by all providers.
//
// Credentials may be given under the unified names (Key, KeyID) or the
// provider aliases (AccessKey, AccessKeyID). A unified name that is set wins;
// the alias fills in when it is empty.
type Options struct {
	// Provider selects the registered provider (e.g., "s3", "minio").
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`

	Key         string `mapstructure:"key" yaml:"key,omitempty"`
	KeyID       string `mapstructure:"key_id" yaml:"key_id,omitempty"`
	AccessKey   string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	AccessKeyID string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`

	SessionToken string `mapstructure:"session_token" yaml:"session_token,omitempty"`

	// Credentials is a provider-native credentials object. The s3 provider
	// expects an aws.CredentialsProvider.
	Credentials any `mapstructure:"-" yaml:"-"`

	Region   string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Protocol is "https://" or "http://". Empty uses DefaultProtocol.
	Protocol string `mapstructure:"protocol" yaml:"protocol,omitempty"`

	APIVersion      string `mapstructure:"api_version" yaml:"api_version,omitempty"`
	ForcePathBucket bool   `mapstructure:"force_path_bucket" yaml:"force_path_bucket,omitempty"`

	// MaxRetries is the number of retries after the first attempt. Nil keeps
	// the SDK default.
	MaxRetries *int `mapstructure:"max_retries" yaml:"max_retries,omitempty"`

	HTTPOptions HTTPOptions `mapstructure:"http_options" yaml:"http_options,omitempty"`

	// ServersURL routes every request through protocol+ServersURL as a proxy.
	// It is meant for mock servers in tests.
	ServersURL string `mapstructure:"servers_url" yaml:"servers_url,omitempty"`

	SecurityGroup   string `mapstructure:"security_group" yaml:"security_group,omitempty"`
	SecurityGroupID string `mapstructure:"security_group_id" yaml:"security_group_id,omitempty"`

	SignedURL SignedURLOptions `mapstructure:"signed_url" yaml:"signed_url,omitempty"`

	// UserAgent is the client identifier sent with every request of this
	// client. Empty uses DefaultUserAgent.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty"`

	// Logger receives client diagnostics. Nil disables logging.
	Logger *zap.Logger `mapstructure:"-" yaml:"-"`
}

// HTTPOptions configures the HTTP layer.
type HTTPOptions struct {
	// Agent configures the connection pool. Nil keeps the SDK transport.
	Agent *AgentOptions `mapstructure:"agent" yaml:"agent,omitempty"`
}

// AgentOptions configures the connection pool.
type AgentOptions struct {
	// KeepAlive enables connection reuse. Nil means disabled.
	KeepAlive *bool `mapstructure:"keep_alive" yaml:"keep_alive,omitempty"`

	// MaxSockets caps connections per host. Zero uses the environment default.
	MaxSockets int `mapstructure:"max_sockets" yaml:"max_sockets,omitempty"`
}

// SignedURLOptions configures presigned URLs.
type SignedURLOptions struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// CacheMaxAge is the URL lifetime in seconds. Zero uses DefaultSignedURLMaxAge.
	CacheMaxAge int `mapstructure:"cache_max_age" yaml:"cache_max_age,omitempty"`
}

// Resolved is the normalized configuration handed to provider adapters.
type Resolved struct {
	Provider ProviderType

	KeyID        string
	Key          string
	SessionToken string
	Credentials  any

	Region          string
	Endpoint        string
	Protocol        string
	APIVersion      string
	ForcePathBucket bool
	MaxRetries      *int

	// Agent is nil when no connection-pool agent was configured.
	Agent *AgentSettings

	// Proxy is set when ServersURL was configured.
	Proxy *url.URL

	SecurityGroup   string
	SecurityGroupID string

	SignedURL SignedURLSettings

	UserAgent string
	Logger    *zap.Logger
}

// AgentSettings is a fully resolved connection-pool configuration.
type AgentSettings struct {
	KeepAlive  bool
	MaxSockets int
}

// SignedURLSettings is a fully resolved signed-URL policy.
type SignedURLSettings struct {
	Enabled     bool
	CacheMaxAge time.Duration
}

// Normalize validates the options and resolves defaults and aliases.
func (o Options) Normalize() (Resolved, error) {
	r := Resolved{
		Provider:        ProviderType(strings.ToLower(strings.TrimSpace(o.Provider))),
		KeyID:           firstNonEmpty(o.KeyID, o.AccessKeyID),
		Key:             firstNonEmpty(o.Key, o.AccessKey),
		SessionToken:    o.SessionToken,
		Credentials:     o.Credentials,
		Region:          o.Region,
		Endpoint:        o.Endpoint,
		Protocol:        firstNonEmpty(o.Protocol, DefaultProtocol),
		APIVersion:      firstNonEmpty(o.APIVersion, DefaultAPIVersion),
		ForcePathBucket: o.ForcePathBucket,
		MaxRetries:      o.MaxRetries,
		SecurityGroup:   o.SecurityGroup,
		SecurityGroupID: o.SecurityGroupID,
		UserAgent:       o.UserAgent,
		Logger:          o.Logger,
	}

	// A native credentials object replaces the key pair entirely.
	if r.Credentials == nil && (r.KeyID != "") != (r.Key != "") {
		return Resolved{}, &ConfigError{
			Provider: r.Provider,
			Field:    "KeyID/Key",
			Message:  "both key id and secret key must be provided together",
		}
	}

	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return Resolved{}, &ConfigError{Provider: r.Provider, Field: "MaxRetries", Message: "must not be negative"}
	}

	if o.HTTPOptions.Agent != nil {
		agent := ResolveAgent(r.Protocol, *o.HTTPOptions.Agent)
		r.Agent = &agent
	}

	if o.ServersURL != "" {
		proxy, err := url.Parse(r.Protocol + o.ServersURL)
		if err != nil {
			return Resolved{}, &ConfigError{Provider: r.Provider, Field: "ServersURL", Message: err.Error()}
		}
		r.Proxy = proxy
	}

	maxAge := o.SignedURL.CacheMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSignedURLMaxAge
	}
	r.SignedURL = SignedURLSettings{
		Enabled:     o.SignedURL.Enabled,
		CacheMaxAge: time.Duration(maxAge) * time.Second,
	}

	if r.UserAgent == "" {
		r.UserAgent = DefaultUserAgent
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}

	return r, nil
}

// Secure reports whether the protocol is encrypted.
func (r Resolved) Secure() bool {
	return strings.Contains(r.Protocol, "https")
}

// CustomTransport reports whether ConfigureTransport changes anything.
func (r Resolved) CustomTransport() bool {
	return r.Agent != nil || r.Proxy != nil
}

// ConfigureTransport applies the agent and proxy settings to tr.
func (r Resolved) ConfigureTransport(tr *http.Transport) {
	if r.Agent != nil {
		tr.DisableKeepAlives = !r.Agent.KeepAlive
		tr.MaxConnsPerHost = r.Agent.MaxSockets
		tr.MaxIdleConnsPerHost = r.Agent.MaxSockets
	}
	if r.Proxy != nil {
		tr.Proxy = http.ProxyURL(r.Proxy)
	}
}

// ResolveAgent applies connection-pool defaults: keep-alive is off unless set
// explicitly, and the socket ceiling falls back to the environment default for
// the protocol.
func ResolveAgent(protocol string, agent AgentOptions) AgentSettings {
	s := AgentSettings{MaxSockets: agent.MaxSockets}
	if agent.KeepAlive != nil {
		s.KeepAlive = *agent.KeepAlive
	}
	if s.MaxSockets <= 0 {
		if strings.Contains(protocol, "https") {
			s.MaxSockets = envMaxSockets(EnvHTTPSMaxSockets)
		} else {
			s.MaxSockets = envMaxSockets(EnvHTTPMaxSockets)
		}
	}
	return s
}

// envMaxSockets reads an integer socket ceiling, falling back to
// DefaultMaxSockets when unset or not a positive integer.
func envMaxSockets(name string) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return DefaultMaxSockets
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return DefaultMaxSockets
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
