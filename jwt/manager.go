package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess is the "type" claim of access tokens.
	TypeAccess = "access"
	// TypeRefresh is the "type" claim of refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, expiry, malformed input and
	// issuer or audience mismatches.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpired is returned alongside ErrInvalidToken for a token past its
	// exp claim, so callers can tell expiry apart from forgery.
	ErrExpired = errors.New("jwt: token expired")
	// ErrMissingClaims is returned when a verified token lacks a required claim.
	ErrMissingClaims = errors.New("jwt: invalid token claims")
	// ErrWrongTokenType is returned when an access token is parsed as refresh
	// or the other way round.
	ErrWrongTokenType = errors.New("jwt: wrong token type")
	// ErrInvalidConfig is returned by NewManager.
	ErrInvalidConfig = errors.New("jwt: invalid config")
)

// Config holds signing secrets and token lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// Now overrides the clock used for issuing and validating. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses tokens. It is immutable after NewManager and safe
// for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// AccessSubject is the identity embedded in an access token.
type AccessSubject struct {
	UserID    string
	Role      string
	RoleLabel string
	Name      string
}

// AccessClaims is the verified payload of an access token.
type AccessClaims struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	RoleLabel string `json:"roleLabel"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

// RefreshClaims is the verified payload of a refresh token.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token together with the values the caller needs to
// persist or return alongside it.
type IssuedToken struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: access and refresh secrets are required", ErrInvalidConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token TTLs must be > 0", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway must be within [0, 2m]", ErrInvalidConfig)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, fmt.Errorf("%w: invalid MaxFutureIAT", ErrInvalidConfig)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs an access token for subject.
func (m *Manager) IssueAccess(subject AccessSubject) (IssuedToken, error) {
	now := m.now()
	jti := uuid.NewString()
	expiresAt := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		Type:             TypeAccess,
		Role:             subject.Role,
		RoleLabel:        subject.RoleLabel,
		Name:             subject.Name,
		RegisteredClaims: m.registered(subject.UserID, jti, now, expiresAt),
	}
	if err := claims.validate(); err != nil {
		return IssuedToken{}, err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, JTI: jti, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// IssueRefresh signs a refresh token for userID with a fresh jti.
func (m *Manager) IssueRefresh(userID string) (IssuedToken, error) {
	now := m.now()
	jti := uuid.NewString()
	expiresAt := now.Add(m.config.RefreshTTL)

	claims := RefreshClaims{
		Type:             TypeRefresh,
		RegisteredClaims: m.registered(userID, jti, now, expiresAt),
	}
	if err := claims.validate(); err != nil {
		return IssuedToken{}, err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, JTI: jti, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if err := m.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if err := m.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) registered(subject, jti string, now, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenRequiredClaimMissing) {
			return fmt.Errorf("%w: %v", ErrMissingClaims, err)
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpired)
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func (m *Manager) checkIssuedAt(iat *jwt.NumericDate) error {
	if iat == nil {
		return nil
	}
	if iat.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrInvalidToken)
	}
	return nil
}

func (c *AccessClaims) validate() error {
	if c.Type != "" && c.Type != TypeAccess {
		return ErrWrongTokenType
	}
	if c.Type == "" || c.Subject == "" || c.ID == "" || c.Role == "" || c.RoleLabel == "" || c.Name == "" {
		return ErrMissingClaims
	}
	return nil
}

func (c *RefreshClaims) validate() error {
	if c.Type != "" && c.Type != TypeRefresh {
		return ErrWrongTokenType
	}
	if c.Type == "" || c.Subject == "" || c.ID == "" {
		return ErrMissingClaims
	}
	return nil
}
