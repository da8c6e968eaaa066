package authz

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/stanstork/bulkgen/internal/models"
)

var ErrInvalidNonce = errors.New("invalid or expired nonce")

// Nonces issues and checks per-family anti-forgery tokens. A nonce is a
// short-lived signed token bound to one caller and one action family.
type Nonces struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewNonces(secret string, ttl time.Duration) *Nonces {
	return &Nonces{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type nonceClaims struct {
	Family models.Family `json:"fam"`
	jwt.RegisteredClaims
}

func (n *Nonces) Issue(subject string, family models.Family) (string, error) {
	now := n.now()
	claims := nonceClaims{
		Family: family,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign nonce")
	}
	return signed, nil
}

// IssueAll returns one nonce per action family.
func (n *Nonces) IssueAll(subject string) (map[models.Family]string, error) {
	out := make(map[models.Family]string, len(models.Families))
	for _, family := range models.Families {
		nonce, err := n.Issue(subject, family)
		if err != nil {
			return nil, err
		}
		out[family] = nonce
	}
	return out, nil
}

func (n *Nonces) Verify(nonce, subject string, family models.Family) error {
	var claims nonceClaims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(nonce, &claims, func(*jwt.Token) (interface{}, error) {
		return n.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidNonce
	}
	if !claims.VerifyExpiresAt(n.now(), true) {
		return ErrInvalidNonce
	}
	if claims.Family != family || claims.Subject != subject {
		return ErrInvalidNonce
	}
	return nil
}
