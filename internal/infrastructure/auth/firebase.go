package auth

import (
	"context"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// FirebaseVerifier implements ports.TokenVerifier with Firebase ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
	// checkRevoked also rejects tokens of disabled or signed-out users.
	checkRevoked bool
}

func NewFirebaseVerifier(client *fbauth.Client, checkRevoked bool) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, checkRevoked: checkRevoked}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	var (
		token *fbauth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domerrors.ErrInvalidToken, err)
	}
	return token.UID, nil
}

var _ ports.TokenVerifier = (*FirebaseVerifier)(nil)
