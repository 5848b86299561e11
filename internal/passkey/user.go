// ABOUTME: webauthn.User adapter over store users and credentials
// ABOUTME: Converts between store.Credential rows and webauthn.Credential values

package passkey

import (
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/cortadohq/cortado/internal/store"
)

// ceremonyUser implements webauthn.User. During registration the account
// does not exist yet, so the adapter is built from the pending identity
// alone; for login it wraps a stored user and their credentials.
type ceremonyUser struct {
	id       string
	username string
	email    string
	creds    []*store.Credential
}

// pendingUser builds the adapter for a registration ceremony. The id
// becomes the user handle stored inside the credential, so it must be the
// same id the user row is later created with.
func pendingUser(id, username, email string) *ceremonyUser {
	return &ceremonyUser{id: id, username: username, email: email}
}

// storedUser builds the adapter for an existing account.
func storedUser(user *store.User, creds []*store.Credential) *ceremonyUser {
	return &ceremonyUser{id: user.ID, username: user.Username, email: user.Email, creds: creds}
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.username
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.username
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = libraryCredential(c)
	}
	return creds
}

// libraryCredential converts a stored credential row into the library's
// credential type, including the persisted transport hints.
func libraryCredential(c *store.Credential) webauthn.Credential {
	cred := webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
	if c.Transports != "" {
		var transports []protocol.AuthenticatorTransport
		_ = json.Unmarshal([]byte(c.Transports), &transports)
		cred.Transport = transports
	}
	return cred
}

// storeCredential converts a freshly verified library credential into a
// row for userID, serializing transports as a JSON array.
func storeCredential(userID string, cred *webauthn.Credential) (*store.Credential, error) {
	transportsJSON, err := json.Marshal(cred.Transport)
	if err != nil {
		return nil, err
	}

	return &store.Credential{
		ID:              uuid.NewString(),
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transportsJSON),
		SignCount:       cred.Authenticator.SignCount,
		CreatedAt:       time.Now(),
	}, nil
}
