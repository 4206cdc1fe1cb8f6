package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-agency/internal/common"
)

// TenantClaim names the private claim carrying the root owner of the caller's team.
const TenantClaim = "tenant"

// Claims is the subset of an access token the API relies on.
type Claims struct {
	UserID   string
	TenantID string
}

// Verifier parses HS256 access tokens minted by the identity service.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	algorithm jwa.SignatureAlgorithm
	now       func() time.Time
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// NewVerifier constructs a Verifier for the shared signing secret.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: skew,
		algorithm: jwa.HS256,
		now:       time.Now,
	}, nil
}

// Verify checks signature, algorithm, expiry, issuer and audience and returns the caller claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if algorithm != v.algorithm {
		return Claims{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if err := v.validate(parsed); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return Claims{}, common.NewAppError("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized, err)
		}
		return Claims{}, unauthorized("invalid token", err)
	}

	claims := Claims{UserID: parsed.Subject()}
	if claims.UserID == "" {
		return Claims{}, unauthorized("invalid token", errors.New("auth: token missing subject"))
	}
	if raw, ok := parsed.Get(TenantClaim); ok {
		if tenant, ok := raw.(string); ok {
			claims.TenantID = strings.TrimSpace(tenant)
		}
	}
	// Owners carry no tenant claim; they are their own root.
	if claims.TenantID == "" {
		claims.TenantID = claims.UserID
	}
	return claims, nil
}

func (v *Verifier) validate(tok jwt.Token) error {
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.clockSkew),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	return jwt.Validate(tok, options...)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if algorithm == "" {
			algorithm = alg
			continue
		}
		if algorithm != alg {
			return "", errors.New("auth: inconsistent token algorithms")
		}
	}
	return algorithm, nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}
