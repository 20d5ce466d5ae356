package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	doc := `
limiters:
  - name: bulk
    max_requests: 3
    window: 90s
  - name: auth
    max_requests: 10
    window: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	policies, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Policy{
		{Name: LimiterBulk, MaxRequests: 3, Window: 90 * time.Second},
		{Name: LimiterAuth, MaxRequests: 10, Window: 15 * time.Minute},
	}, policies)
}

func TestParsePolicies_Invalid(t *testing.T) {
	_, err := ParsePolicies([]byte("limiters:\n  - name: bulk\n    max_requests: -1\n    window: 1m\n"))
	require.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = ParsePolicies([]byte("limiters: [oops"))
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestMergePolicies(t *testing.T) {
	base := []Policy{
		{Name: LimiterSync, MaxRequests: 10, Window: time.Minute},
		{Name: LimiterBulk, MaxRequests: 5, Window: time.Minute},
	}
	overrides := []Policy{{Name: LimiterBulk, MaxRequests: 1, Window: time.Second}}

	assert.Equal(t, []Policy{
		{Name: LimiterBulk, MaxRequests: 1, Window: time.Second},
		{Name: LimiterSync, MaxRequests: 10, Window: time.Minute},
	}, MergePolicies(base, overrides))
}
