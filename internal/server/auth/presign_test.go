package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func newService(now time.Time) *PresignService {
	s := NewPresignService([]byte("super-secret"), time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := newService(now)

	tok, err := s.Issue("cred-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "cred-1", tok.CredentialID)
	assert.Equal(t, time.Hour, tok.ExpiresAt.Sub(tok.IssuedAt))

	claims, err := s.Verify(tok.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "cred-1", claims.Subject)
	assert.Empty(t, claims.Scope)
}

func TestIssue_TTLBounds(t *testing.T) {
	t.Parallel()

	s := newService(time.Now())

	tests := []struct {
		name    string
		ttl     *int
		wantErr bool
	}{
		{"default", nil, false},
		{"zero", intp(0), false},
		{"one minute", intp(1), false},
		{"seven days", intp(MaxPresignTTLMinutes), false},
		{"one past max", intp(MaxPresignTTLMinutes + 1), true},
		{"20000 minutes", intp(20000), true},
		{"negative", intp(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := s.Issue("cred", tt.ttl, "")
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidRequest)
				assert.Nil(t, tok)
				return
			}
			require.NoError(t, err)
			if tt.ttl != nil {
				assert.Equal(t, time.Duration(*tt.ttl)*time.Minute, tok.ExpiresAt.Sub(tok.IssuedAt))
			}
		})
	}
}

func TestIssue_Validation(t *testing.T) {
	t.Parallel()

	s := newService(time.Now())

	_, err := s.Issue("", nil, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = s.Issue("cred", nil, "folder:1")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = s.Issue("cred", nil, "envelope:")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-2 * time.Hour)
	tok, err := newService(issuedAt).Issue("cred", intp(60), "")
	require.NoError(t, err)

	_, err = newService(time.Now()).Verify(tok.Token, "")
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewPresignService([]byte("right"), time.Hour).Issue("cred", nil, "")
	require.NoError(t, err)

	_, err = NewPresignService([]byte("wrong"), time.Hour).Verify(tok.Token, "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	_, err := newService(time.Now()).Verify("not.a.jwt", "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Scope(t *testing.T) {
	t.Parallel()

	s := newService(time.Now())
	scopeA := EnvelopeScope("envelope_a")
	scopeB := EnvelopeScope("envelope_b")

	tok, err := s.Issue("cred", nil, scopeA)
	require.NoError(t, err)

	claims, err := s.Verify(tok.Token, scopeA)
	require.NoError(t, err)
	assert.Equal(t, scopeA, claims.Scope)

	_, err = s.Verify(tok.Token, scopeB)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	unscoped, err := s.Issue("cred", nil, "")
	require.NoError(t, err)
	_, err = s.Verify(unscoped.Token, scopeB)
	assert.NoError(t, err)
}

func TestScopeAllows(t *testing.T) {
	assert.True(t, ScopeAllows("", "envelope_a"))
	assert.True(t, ScopeAllows("envelope:envelope_a", "envelope_a", "document_x"))
	assert.True(t, ScopeAllows("envelope:document_x", "envelope_a", "document_x"))
	assert.False(t, ScopeAllows("envelope:envelope_a", "envelope_b", ""))
	assert.False(t, ScopeAllows("envelope:", "", ""))
}

func TestLooksLikePresignToken(t *testing.T) {
	assert.True(t, LooksLikePresignToken("a.b.c"))
	assert.False(t, LooksLikePresignToken("api_abcdef"))
}
