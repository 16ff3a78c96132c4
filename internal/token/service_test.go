package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, clock *fakeClock) *Service {
	t.Helper()
	svc, err := NewService(Config{
		SecretKey:  testSecret,
		Issuer:     "odyssey-pos",
		Audience:   "odyssey-pos-web",
		AccessTTL:  10 * time.Minute,
		RefreshTTL: time.Hour,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsWeakConfig(t *testing.T) {
	_, err := NewService(Config{SecretKey: "short", Issuer: "i", Audience: "a"})
	require.ErrorIs(t, err, ErrWeakSigningKey)

	_, err = NewService(Config{SecretKey: testSecret, Audience: "a"})
	require.ErrorIs(t, err, ErrIssuerRequired)

	_, err = NewService(Config{SecretKey: testSecret, Issuer: "i"})
	require.ErrorIs(t, err, ErrAudienceRequired)
}

func TestIssueValidateRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	pair, err := svc.Issue(Principal{UserID: 42, Username: "kasir", Email: "kasir@pos.local", Role: "Sales Clerk"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, clock.now.Add(10*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, clock.now.Add(time.Hour), pair.RefreshExpiresAt)

	p, ok := svc.Validate(pair.AccessToken)
	require.True(t, ok)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "kasir", p.Username)
	assert.Equal(t, "kasir@pos.local", p.Email)
	assert.Equal(t, "Sales Clerk", p.Role)
	assert.Equal(t, clock.now, p.IssuedAt)
	assert.Equal(t, pair.AccessExpiresAt, p.ExpiresAt)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	pair, err := svc.Issue(Principal{UserID: 7, Role: "User"})
	require.NoError(t, err)

	clock.now = clock.now.Add(10*time.Minute + time.Second)
	_, ok := svc.Validate(pair.AccessToken)
	assert.False(t, ok)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	svc := newTestService(t, clock)

	other, err := NewService(Config{SecretKey: testSecret, Issuer: "odyssey-pos", Audience: "someone-else"}, WithClock(clock.Now))
	require.NoError(t, err)
	pair, err := other.Issue(Principal{UserID: 1})
	require.NoError(t, err)
	_, ok := svc.Validate(pair.AccessToken)
	assert.False(t, ok, "audience mismatch must fail")

	pair, err = svc.Issue(Principal{UserID: 1})
	require.NoError(t, err)
	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	_, ok = svc.Validate(tampered)
	assert.False(t, ok, "tampered signature must fail")

	_, ok = svc.Validate("")
	assert.False(t, ok)
	_, ok = svc.Validate("not-a-jwt")
	assert.False(t, ok)
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	svc := newTestService(t, clock)

	claims := claimsFor(Principal{UserID: 3}, "odyssey-pos", "odyssey-pos-web", clock.now, clock.now.Add(time.Minute))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, ok := svc.Validate(unsigned)
	assert.False(t, ok)
}

func TestValidateRejectsUnknownClaimsVersion(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	svc := newTestService(t, clock)

	claims := claimsFor(Principal{UserID: 3}, "odyssey-pos", "odyssey-pos-web", clock.now, clock.now.Add(time.Minute))
	claims.Version = ClaimsVersion + 1
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, ok := svc.Validate(signed)
	assert.False(t, ok)
}

func TestIssueMintsDistinctRefreshTokens(t *testing.T) {
	svc := newTestService(t, &fakeClock{now: time.Now().UTC()})
	a, err := svc.Issue(Principal{UserID: 1})
	require.NoError(t, err)
	b, err := svc.Issue(Principal{UserID: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)
	assert.False(t, strings.ContainsAny(a.RefreshToken, "+/="))

	_, err = svc.Issue(Principal{})
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestHashRefreshTokenIsStable(t *testing.T) {
	assert.Equal(t, HashRefreshToken("abc"), HashRefreshToken("abc"))
	assert.NotEqual(t, HashRefreshToken("abc"), HashRefreshToken("abd"))
	assert.Len(t, HashRefreshToken("abc"), 64)
}
