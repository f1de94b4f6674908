package urlutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndValidate(t *testing.T) {
	u, err := ParseAndValidate("https://example.com/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Hostname())

	for _, bad := range []string{
		"",
		"   ",
		"not-a-url",
		"ftp://example.com/file",
		"//example.com/path",
		"https://",
	} {
		_, err := ParseAndValidate(bad)
		assert.Error(t, err, bad)
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM", "https://example.com/"},
		{"https://example.com/path#section", "https://example.com/path"},
		{"https://example.com/path?q=1", "https://example.com/path?q=1"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := Canonicalize("not-a-url")
	assert.Error(t, err)
}

func TestHostname(t *testing.T) {
	assert.Equal(t, "example.com", Hostname("https://Example.com:443/path"))
	assert.Equal(t, "", Hostname("://bad"))
}

func TestRegisteredDomain(t *testing.T) {
	assert.Equal(t, "example.com", RegisteredDomain("docs.example.com"))
	assert.Equal(t, "example.co.uk", RegisteredDomain("a.b.example.co.uk"))
	assert.Equal(t, "example.com", RegisteredDomain("EXAMPLE.com."))
}

func TestSameRegisteredDomain(t *testing.T) {
	assert.True(t, SameRegisteredDomain("docs.example.com", "www.example.com"))
	assert.True(t, SameRegisteredDomain("example.com", "example.com"))
	assert.False(t, SameRegisteredDomain("example.com", "example.org"))
	assert.False(t, SameRegisteredDomain("", "example.com"))
}

func TestIsBlockedIP(t *testing.T) {
	blocked := []string{
		"127.0.0.1",
		"10.0.0.5",
		"172.16.1.1",
		"192.168.1.1",
		"169.254.1.1",
		"0.0.0.0",
		"100.64.0.1",
		"192.0.2.1",
		"198.18.0.1",
		"198.51.100.1",
		"203.0.113.1",
		"240.0.0.1",
		"255.255.255.255",
		"::1",
		"fe80::1",
	}
	for _, s := range blocked {
		assert.True(t, IsBlockedIP(net.ParseIP(s), false), s)
	}

	allowed := []string{"93.184.216.34", "8.8.8.8", "2606:2800:220:1:248:1893:25c8:1946"}
	for _, s := range allowed {
		assert.False(t, IsBlockedIP(net.ParseIP(s), false), s)
	}

	// allowLocal disables the guard entirely.
	assert.False(t, IsBlockedIP(net.ParseIP("127.0.0.1"), true))
	assert.True(t, IsBlockedIP(nil, false))
}

func TestValidateRemoteAddr(t *testing.T) {
	assert.NoError(t, ValidateRemoteAddr("93.184.216.34:443", false))
	assert.Error(t, ValidateRemoteAddr("127.0.0.1:80", false))
	assert.Error(t, ValidateRemoteAddr("[::1]:80", false))
	assert.NoError(t, ValidateRemoteAddr("127.0.0.1:80", true))
	assert.Error(t, ValidateRemoteAddr("not-an-ip:80", false))
}
