// ABOUTME: Signs capability-scoped room join credentials as HS256 JWTs
// ABOUTME: Validates and sanitizes inputs, requires configured API key and secret

package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/session-gateway/internal/apierr"
)

// TTL is the lifetime of every join credential.
const TTL = 10 * time.Minute

// Capability is a single permission granted inside a room.
type Capability string

const (
	CapabilityJoin        Capability = "join"
	CapabilityPublish     Capability = "publish"
	CapabilitySubscribe   Capability = "subscribe"
	CapabilityPublishData Capability = "publishData"
)

// FullCapabilities returns the capability set granted by this gateway.
func FullCapabilities() []Capability {
	return []Capability{CapabilityJoin, CapabilityPublish, CapabilitySubscribe, CapabilityPublishData}
}

// ErrInvalidCredential is returned by Parse for tokens that fail verification.
var ErrInvalidCredential = errors.New("invalid credential")

// VideoGrant is the room grant embedded in the token.
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Capabilities lists the permissions set in the grant.
func (g VideoGrant) Capabilities() []Capability {
	var caps []Capability
	if g.RoomJoin {
		caps = append(caps, CapabilityJoin)
	}
	if g.CanPublish {
		caps = append(caps, CapabilityPublish)
	}
	if g.CanSubscribe {
		caps = append(caps, CapabilitySubscribe)
	}
	if g.CanPublishData {
		caps = append(caps, CapabilityPublishData)
	}
	return caps
}

// Claims is the JWT payload of a join credential.
type Claims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// Credential is an issued join grant.
type Credential struct {
	Token        string
	Identity     string
	Name         string
	Room         string
	Capabilities []Capability
	IssuedAt     time.Time
	ExpiresAt    time.Time
	TTL          time.Duration
	WSURL        string
}

// Issuer signs join credentials with the platform API key pair.
type Issuer struct {
	apiKey    string
	apiSecret []byte
	wsURL     string
	now       func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock replaces the issuer's time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. Empty key material is accepted here and reported
// as a configuration error when a credential is requested.
func NewIssuer(apiKey, apiSecret, wsURL string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		wsURL:     wsURL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Configured reports whether both the API key and secret are present.
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && len(i.apiSecret) > 0
}

// Issue creates a credential for participantName to join roomName.
// actor is the authenticated caller and only appears in error context; the
// identity in the grant is the sanitized participant name.
func (i *Issuer) Issue(actor, roomName, participantName string) (*Credential, error) {
	if roomName == "" || participantName == "" {
		return nil, apierr.InvalidInput("roomName and participantName are required")
	}

	room := Sanitize(roomName)
	identity := Sanitize(participantName)
	if room == "" {
		return nil, apierr.InvalidInput("roomName %q contains no allowed characters", roomName)
	}
	if identity == "" {
		return nil, apierr.InvalidInput("participantName %q contains no allowed characters", participantName)
	}

	if !i.Configured() {
		return nil, apierr.Configuration("livekit api key and secret")
	}

	now := i.now().UTC().Truncate(time.Second)
	expires := now.Add(TTL)
	name := "User-" + identity

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name: name,
		Video: VideoGrant{
			Room:           room,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
	if err != nil {
		return nil, apierr.Internal("signing credential for "+actor, err)
	}

	return &Credential{
		Token:        token,
		Identity:     identity,
		Name:         name,
		Room:         room,
		Capabilities: FullCapabilities(),
		IssuedAt:     now,
		ExpiresAt:    expires,
		TTL:          TTL,
		WSURL:        i.wsURL,
	}, nil
}

// Parse verifies a credential signed by this issuer and returns its claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	if !i.Configured() {
		return nil, apierr.Configuration("livekit api key and secret")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.apiSecret, nil
	},
		jwt.WithIssuer(i.apiKey),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
