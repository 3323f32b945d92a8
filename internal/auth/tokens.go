package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/avirag26/scholaro-api/internal/common"
)

const roleClaim = "role"

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier checks HMAC-signed access tokens issued by the identity service
// and turns them into request principals.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	Now       func() time.Time
}

// NewVerifier builds an HS256 verifier.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{Secret: []byte(secret), Issuer: issuer, ClockSkew: 30 * time.Second, Algorithm: jwa.HS256}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Parse verifies token and returns the caller it names.
func (v *Verifier) Parse(token string) (common.Principal, error) {
	token = strings.TrimSpace(token)
	if v == nil || len(v.Secret) == 0 {
		return common.Principal{}, errors.New("auth: verifier not configured")
	}
	alg, err := tokenAlgorithm(token)
	if err != nil {
		return common.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if v.Algorithm != "" && alg != v.Algorithm {
		return common.Principal{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, alg)
	}
	opts := []jwt.ParseOption{
		jwt.WithKey(alg, v.Secret),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.ClockSkew),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		return common.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed.Subject() == "" {
		return common.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	p := common.Principal{UserID: parsed.Subject(), Role: common.RoleStudent}
	if raw, ok := parsed.Get(roleClaim); ok {
		if role, ok := raw.(string); ok && role != "" {
			p.Role = role
		}
	}
	return p, nil
}

// Issue signs a token for userID. The API never logs users in; this is used
// by the seeder and by tests.
func (v *Verifier) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := v.now()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(v.Issuer).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(roleClaim, role).
		Build()
	if err != nil {
		return "", err
	}
	if v.Audience != "" {
		if err := tok.Set(jwt.AudienceKey, []string{v.Audience}); err != nil {
			return "", err
		}
	}
	alg := v.Algorithm
	if alg == "" {
		alg = jwa.HS256
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, v.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("expected exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("none algorithm rejected")
	}
	return alg, nil
}
