package imagekit

import (
	"errors"
	"time"

	"github.com/google/uuid"
	ik "github.com/imagekit-developer/imagekit-go"
)

var ErrMissingCredentials = errors.New("missing environment variables")

// DefaultExpiry is how long upload credentials stay valid
const DefaultExpiry = 30 * time.Minute

// AuthParameters are the short-lived upload credentials handed to the
// browser, together with the public values it needs to call the CDN
type AuthParameters struct {
	Token       string `json:"token"`
	Expire      int64  `json:"expire"`
	Signature   string `json:"signature"`
	PublicKey   string `json:"publicKey"`
	URLEndpoint string `json:"urlEndpoint"`
}

type Signer struct {
	client      *ik.ImageKit
	publicKey   string
	urlEndpoint string
	now         func() time.Time
	newToken    func() string
}

// NewSigner fails with ErrMissingCredentials when any key is empty
func NewSigner(privateKey, publicKey, urlEndpoint string) (*Signer, error) {
	if privateKey == "" || publicKey == "" || urlEndpoint == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{
		client: ik.NewFromParams(ik.NewParams{
			PrivateKey:  privateKey,
			PublicKey:   publicKey,
			UrlEndpoint: urlEndpoint,
		}),
		publicKey:   publicKey,
		urlEndpoint: urlEndpoint,
		now:         time.Now,
		newToken:    uuid.NewString,
	}, nil
}

// AuthenticationParameters issues a fresh token valid for DefaultExpiry
func (s *Signer) AuthenticationParameters() AuthParameters {
	signed := s.client.SignToken(ik.SignTokenParam{
		Token:   s.newToken(),
		Expires: s.now().Add(DefaultExpiry).Unix(),
	})
	return AuthParameters{
		Token:       signed.Token,
		Expire:      signed.Expires,
		Signature:   signed.Signature,
		PublicKey:   s.publicKey,
		URLEndpoint: s.urlEndpoint,
	}
}

// Sign returns the signature the CDN expects for token and expire
func (s *Signer) Sign(token string, expire int64) string {
	return s.client.SignToken(ik.SignTokenParam{Token: token, Expires: expire}).Signature
}
