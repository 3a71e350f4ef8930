package authenticator

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/bytedance/sonic"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/curaious/projecthub/internal/config"
)

// Authenticator issues and verifies access tokens. OIDC login and validation of issuer tokens
// are enabled when OIDC_ISSUER is set.
type Authenticator struct {
	*oidc.Provider
	oauth2.Config

	signingKey   []byte
	tokenTTL     time.Duration
	stateSecret  string
	issuer       string
	jwtValidator *validator.Validator
	audience     string
	oidcEnabled  bool
}

func New(conf *config.Config) (*Authenticator, error) {
	signingKey := []byte(conf.JWT_SIGNING_KEY)
	if len(signingKey) == 0 {
		slog.Warn("JWT_SIGNING_KEY is not set, using an ephemeral key; sessions will not survive a restart")
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return nil, err
		}
	}

	a := &Authenticator{
		signingKey:  signingKey,
		tokenTTL:    conf.ACCESS_TOKEN_TTL,
		stateSecret: conf.STATE_SECRET,
		audience:    conf.OIDC_AUDIENCE,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 24 * time.Hour
	}
	if a.stateSecret == "" {
		a.stateSecret = string(signingKey)
	}

	if conf.OIDC_ISSUER == "" {
		return a, nil
	}

	issuer := strings.TrimSuffix(conf.OIDC_ISSUER, "/") + "/"

	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		return nil, err
	}

	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, err
	}

	jwksProvider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	jwtValidator, err := validator.New(
		jwksProvider.KeyFunc,
		validator.RS256,
		issuer,
		[]string{a.audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &externalClaims{} }),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	a.Provider = provider
	a.Config = oauth2.Config{
		ClientID:     conf.OIDC_CLIENT_ID,
		ClientSecret: conf.OIDC_CLIENT_SECRET,
		RedirectURL:  conf.OIDC_CALLBACK_URL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	a.issuer = issuer
	a.jwtValidator = jwtValidator
	a.oidcEnabled = true

	slog.Info("OIDC login enabled", slog.String("issuer", issuer))

	return a, nil
}

func (a *Authenticator) OIDCEnabled() bool {
	return a.oidcEnabled
}

func (a *Authenticator) Audience() string {
	return a.audience
}

func (a *Authenticator) TokenTTL() time.Duration {
	return a.tokenTTL
}

// VerifyIDToken verifies that an *oauth2.Token is a valid *oidc.IDToken.
func (a *Authenticator) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*oidc.IDToken, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token field in oauth2 token")
	}

	oidcConfig := &oidc.Config{
		ClientID: a.ClientID,
	}

	return a.Verifier(oidcConfig).Verify(ctx, rawIDToken)
}

// IDTokenProfile is the part of an ID token used to find or create the local identity.
type IDTokenProfile struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

type OAuthState struct {
	CSRF      string `json:"csrf"`
	Redirect  string `json:"redirect"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (a *Authenticator) GetSignedState(state OAuthState) (string, error) {
	payload, err := sonic.Marshal(state)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(a.stateSecret))
	mac.Write(payload)
	sig := mac.Sum(nil)

	combined := append(payload, sig...)
	return base64.RawURLEncoding.EncodeToString(combined), nil
}

func (a *Authenticator) VerifySignedState(encodedState string) (*OAuthState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encodedState)
	if err != nil {
		return nil, errors.New("invalid base64")
	}

	if len(raw) < sha256.Size {
		return nil, errors.New("state too short")
	}

	payload := raw[:len(raw)-sha256.Size]
	sig := raw[len(raw)-sha256.Size:]

	mac := hmac.New(sha256.New, []byte(a.stateSecret))
	mac.Write(payload)
	expectedSig := mac.Sum(nil)
	if !hmac.Equal(sig, expectedSig) {
		return nil, errors.New("invalid state signature")
	}

	var state OAuthState
	if err := sonic.Unmarshal(payload, &state); err != nil {
		return nil, errors.New("invalid state payload")
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, errors.New("state expired")
	}

	return &state, nil
}

// externalClaims are read from access tokens minted by the OIDC issuer.
type externalClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c *externalClaims) Validate(context.Context) error {
	if c.Email == "" {
		return errors.New("token has no email claim")
	}
	return nil
}

// VerifyAccessToken accepts tokens issued by GenerateToken and, with OIDC enabled, access tokens
// from the issuer. Issuer tokens carry no local user id; UserClaims.External is set instead.
func (a *Authenticator) VerifyAccessToken(ctx context.Context, token string) (*UserClaims, error) {
	claims, localErr := a.parseLocalToken(token)
	if localErr == nil {
		return claims, nil
	}

	if !a.oidcEnabled {
		return nil, localErr
	}

	payload, err := a.jwtValidator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	validated, ok := payload.(*validator.ValidatedClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	custom, ok := validated.CustomClaims.(*externalClaims)
	if !ok {
		return nil, errors.New("unexpected custom claims type")
	}

	return &UserClaims{Email: custom.Email, Name: custom.Name, External: true}, nil
}
