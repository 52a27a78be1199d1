package storage

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestNormalize_Credentials(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantKeyID string
		wantKey   string
		wantErr   string
	}{
		{
			name:      "unified names",
			opts:      Options{KeyID: "AKID", Key: "SECRET"},
			wantKeyID: "AKID",
			wantKey:   "SECRET",
		},
		{
			name:      "provider aliases",
			opts:      Options{AccessKeyID: "AKID", AccessKey: "SECRET"},
			wantKeyID: "AKID",
			wantKey:   "SECRET",
		},
		{
			name:      "unified name wins over alias",
			opts:      Options{KeyID: "UNIFIED", AccessKeyID: "ALIAS", Key: "S1", AccessKey: "S2"},
			wantKeyID: "UNIFIED",
			wantKey:   "S1",
		},
		{
			name:      "mixed names",
			opts:      Options{KeyID: "AKID", AccessKey: "SECRET"},
			wantKeyID: "AKID",
			wantKey:   "SECRET",
		},
		{
			name: "no credentials",
			opts: Options{},
		},
		{
			name:    "key id without secret",
			opts:    Options{AccessKeyID: "AKID"},
			wantErr: "both key id and secret key must be provided together",
		},
		{
			name:    "secret without key id",
			opts:    Options{Key: "SECRET"},
			wantErr: "both key id and secret key must be provided together",
		},
		{
			name:      "native credentials skip the pair check",
			opts:      Options{KeyID: "AKID", Credentials: struct{}{}},
			wantKeyID: "AKID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.opts.Normalize()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var cfgErr *ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeyID, r.KeyID)
			assert.Equal(t, tt.wantKey, r.Key)
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	r, err := Options{Provider: " S3 "}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, ProviderS3, r.Provider)
	assert.Equal(t, "https://", r.Protocol)
	assert.Equal(t, "2014-06-15", r.APIVersion)
	assert.True(t, r.Secure())
	assert.Nil(t, r.Agent)
	assert.Nil(t, r.Proxy)
	assert.False(t, r.CustomTransport())
	assert.False(t, r.SignedURL.Enabled)
	assert.Equal(t, 600*time.Second, r.SignedURL.CacheMaxAge)
	assert.Equal(t, DefaultUserAgent, r.UserAgent)
	assert.NotNil(t, r.Logger)
}

func TestNormalize_SignedURL(t *testing.T) {
	r, err := Options{SignedURL: SignedURLOptions{Enabled: true, CacheMaxAge: 60}}.Normalize()
	require.NoError(t, err)
	assert.True(t, r.SignedURL.Enabled)
	assert.Equal(t, time.Minute, r.SignedURL.CacheMaxAge)
}

func TestNormalize_ServersURL(t *testing.T) {
	r, err := Options{Protocol: "http://", ServersURL: "localhost:5555"}.Normalize()
	require.NoError(t, err)
	require.NotNil(t, r.Proxy)
	assert.Equal(t, "http://localhost:5555", r.Proxy.String())
	assert.False(t, r.Secure())
	assert.True(t, r.CustomTransport())
}

func TestNormalize_MaxRetries(t *testing.T) {
	r, err := Options{MaxRetries: intPtr(2)}.Normalize()
	require.NoError(t, err)
	require.NotNil(t, r.MaxRetries)
	assert.Equal(t, 2, *r.MaxRetries)

	_, err = Options{MaxRetries: intPtr(-1)}.Normalize()
	require.Error(t, err)
}

func TestResolveAgent(t *testing.T) {
	t.Setenv(EnvHTTPSMaxSockets, "250")
	t.Setenv(EnvHTTPMaxSockets, "50")

	tests := []struct {
		name     string
		protocol string
		agent    AgentOptions
		expected AgentSettings
	}{
		{
			name:     "https without keepAlive uses https default",
			protocol: "https://",
			agent:    AgentOptions{},
			expected: AgentSettings{KeepAlive: false, MaxSockets: 250},
		},
		{
			name:     "http without keepAlive uses http default",
			protocol: "http://",
			agent:    AgentOptions{},
			expected: AgentSettings{KeepAlive: false, MaxSockets: 50},
		},
		{
			name:     "explicit keepAlive and sockets",
			protocol: "https://",
			agent:    AgentOptions{KeepAlive: boolPtr(true), MaxSockets: 8},
			expected: AgentSettings{KeepAlive: true, MaxSockets: 8},
		},
		{
			name:     "explicit keepAlive false",
			protocol: "http://",
			agent:    AgentOptions{KeepAlive: boolPtr(false)},
			expected: AgentSettings{KeepAlive: false, MaxSockets: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveAgent(tt.protocol, tt.agent))
		})
	}
}

func TestResolveAgent_EnvFallback(t *testing.T) {
	t.Run("non-numeric", func(t *testing.T) {
		t.Setenv(EnvHTTPSMaxSockets, "lots")
		assert.Equal(t, DefaultMaxSockets, ResolveAgent("https://", AgentOptions{}).MaxSockets)
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv(EnvHTTPMaxSockets, "0")
		assert.Equal(t, DefaultMaxSockets, ResolveAgent("http://", AgentOptions{}).MaxSockets)
	})
}

func TestNormalize_AgentFromOptions(t *testing.T) {
	t.Setenv(EnvHTTPSMaxSockets, "")

	r, err := Options{HTTPOptions: HTTPOptions{Agent: &AgentOptions{}}}.Normalize()
	require.NoError(t, err)
	require.NotNil(t, r.Agent)
	assert.False(t, r.Agent.KeepAlive)
	assert.Equal(t, DefaultMaxSockets, r.Agent.MaxSockets)
}

func TestConfigureTransport(t *testing.T) {
	r, err := Options{
		Protocol:    "http://",
		ServersURL:  "127.0.0.1:9999",
		HTTPOptions: HTTPOptions{Agent: &AgentOptions{MaxSockets: 12}},
	}.Normalize()
	require.NoError(t, err)

	tr := http.DefaultTransport.(*http.Transport).Clone()
	r.ConfigureTransport(tr)

	assert.True(t, tr.DisableKeepAlives)
	assert.Equal(t, 12, tr.MaxConnsPerHost)
	assert.Equal(t, 12, tr.MaxIdleConnsPerHost)
	require.NotNil(t, tr.Proxy)

	proxy, err := tr.Proxy(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", proxy.String())
}
