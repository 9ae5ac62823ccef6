package session

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// pasetoClaimUserID carries the user id in v4.public tokens.
const pasetoClaimUserID = "uid"

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	// secret is nil for verify-only managers built from a public key.
	secret *paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds an AccessTokenManager based on PASETO v4.public.
//
// With PasetoV4SecretKeyHex it can issue and verify. With only PasetoV4PublicKeyHex it
// verifies tokens minted by the marketplace login service and Issue returns ErrVerifyOnly.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	m := &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}

	switch {
	case cfg.PasetoV4SecretKeyHex != "":
		secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		m.secret = &secret
		m.public = secret.Public()
	case cfg.PasetoV4PublicKeyHex != "":
		public, err := paseto.NewV4AsymmetricPublicKeyFromHex(cfg.PasetoV4PublicKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		m.public = public
	default:
		return nil, ErrConfig
	}
	return m, nil
}

func (m *pasetoV4PublicManager) Issue(userID string, now time.Time) (string, time.Time, error) {
	if m.secret == nil {
		return "", time.Time{}, ErrVerifyOnly
	}
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	if err := tok.Set(pasetoClaimUserID, userID); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(*m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	// Rules accumulate on a parser, so each call gets its own.
	// ValidAt is checked slightly ahead so a client clock that runs early still passes "nbf".
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString(pasetoClaimUserID)
	if err != nil || strings.TrimSpace(uid) == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{UserID: uid}
	out.Issuer, _ = parsed.GetIssuer()
	out.ExpiresAt, _ = parsed.GetExpiration()
	out.IssuedAt, _ = parsed.GetIssuedAt()
	return out, nil
}
