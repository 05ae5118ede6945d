package fakebackend

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// issuer mints and verifies the HS256 tokens handed out by the login route.
type issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (i *issuer) create(user *User) (string, error) {
	now := i.now()
	claims := jwtlib.MapClaims{
		"user_id": user.ID,
		"sub":     user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(i.ttl).Unix(),
		"jti":     uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// verify checks the signature and expiry and returns the user id.
func (i *issuer) verify(raw string) (string, error) {
	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		return i.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", errors.New("token has no user_id")
	}
	return userID, nil
}
