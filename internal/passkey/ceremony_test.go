// ABOUTME: Full ceremony tests driven by a virtual authenticator
// ABOUTME: Covers registration, both login flows, counter rules, and added credentials

package passkey

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortadohq/cortado/internal/session"
	"github.com/cortadohq/cortado/internal/store"
)

const (
	testRPName   = "cortado test"
	testRPID     = "example.com"
	testRPOrigin = "https://example.com"
)

func newTestEngine(t *testing.T) (*Engine, store.Store, session.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := session.NewMemoryStore()
	t.Cleanup(func() { sessions.Close() })

	engine, err := New(RelyingParty{
		DisplayName: testRPName,
		ID:          testRPID,
		Origins:     []string{testRPOrigin},
	}, st, sessions, nil)
	require.NoError(t, err)

	return engine, st, sessions
}

func newTestRecord(t *testing.T) *session.Record {
	t.Helper()

	token, err := session.NewToken()
	require.NoError(t, err)

	return &session.Record{
		Token:     token,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func testVirtualRP() virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{Name: testRPName, ID: testRPID, Origin: testRPOrigin}
}

// signAttestation produces the browser-side attestation response for the
// given creation options.
func signAttestation(t *testing.T, auth *virtualwebauthn.Authenticator, cred *virtualwebauthn.Credential, options *protocol.CredentialCreation) string {
	t.Helper()

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	return virtualwebauthn.CreateAttestationResponse(testVirtualRP(), *auth, *cred, *parsed)
}

// signAssertion produces the browser-side assertion response for the given
// request options.
func signAssertion(t *testing.T, auth *virtualwebauthn.Authenticator, cred *virtualwebauthn.Credential, options *protocol.CredentialAssertion) string {
	t.Helper()

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	return virtualwebauthn.CreateAssertionResponse(testVirtualRP(), *auth, *cred, *parsed)
}

// registerTestUser runs a complete registration ceremony on rec, returning
// the created account and the virtual credential that now backs it.
func registerTestUser(t *testing.T, engine *Engine, rec *session.Record, username, email string) (*store.User, *virtualwebauthn.Credential, *virtualwebauthn.Authenticator) {
	t.Helper()
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, err := engine.BeginRegistration(ctx, rec, username, email)
	require.NoError(t, err)

	attestation := signAttestation(t, &authenticator, &credential, options)

	user, err := engine.FinishRegistration(ctx, rec, strings.NewReader(attestation))
	require.NoError(t, err)

	authenticator.AddCredential(credential)
	return user, &credential, &authenticator
}

func TestRegistrationCeremony(t *testing.T) {
	engine, st, sessions := newTestEngine(t)
	ctx := context.Background()
	rec := newTestRecord(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, err := engine.BeginRegistration(ctx, rec, "nikhil", "nikhil@example.com")
	require.NoError(t, err)
	require.NotNil(t, options)

	assert.Equal(t, testRPID, options.Response.RelyingParty.ID)
	assert.Equal(t, testRPName, options.Response.RelyingParty.Name)
	assert.Equal(t, "nikhil", options.Response.User.Name)
	assert.NotEmpty(t, options.Response.Challenge)

	// The challenge and pending identity are in the session, not yet rows.
	stored, err := sessions.Get(ctx, rec.Token)
	require.NoError(t, err)
	require.NotNil(t, stored.Ceremony)
	assert.Equal(t, session.CeremonyRegistration, stored.Ceremony.Kind)
	assert.Equal(t, "nikhil", stored.Ceremony.Username)
	assert.False(t, stored.Authenticated())
	_, err = st.GetUserByUsername(ctx, "nikhil")
	assert.ErrorIs(t, err, store.ErrNotFound)

	attestation := signAttestation(t, &authenticator, &credential, options)

	user, err := engine.FinishRegistration(ctx, rec, strings.NewReader(attestation))
	require.NoError(t, err)
	assert.Equal(t, "nikhil", user.Username)
	assert.Equal(t, "nikhil@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	// One write consumed the ceremony and bound the identity.
	stored, err = sessions.Get(ctx, rec.Token)
	require.NoError(t, err)
	assert.Nil(t, stored.Ceremony)
	assert.Equal(t, user.ID, stored.UserID)
	assert.True(t, stored.Authenticated())

	// User and credential rows exist with the authenticator's counter.
	creds, err := st.GetCredentialsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, credential.Counter, creds[0].SignCount)
	assert.NotEmpty(t, creds[0].PublicKey)
}

func TestFinishRegistration_WithoutBegin(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rec := newTestRecord(t)

	_, err := engine.FinishRegistration(context.Background(), rec, strings.NewReader("{}"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindState, cerr.Kind)
}

func TestFinishRegistration_GarbageResponse(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()
	rec := newTestRecord(t)

	_, err := engine.BeginRegistration(ctx, rec, "nikhil", "nikhil@example.com")
	require.NoError(t, err)

	_, err = engine.FinishRegistration(ctx, rec, strings.NewReader("not json"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindVerification, cerr.Kind)
	assert.Equal(t, "credential verification failed", cerr.Message)

	// Nothing was committed and the challenge was consumed.
	_, err = st.GetUserByUsername(ctx, "nikhil")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = engine.FinishRegistration(ctx, rec, strings.NewReader("{}"))
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindState, cerr.Kind)
}

func TestRegistration_LatestCeremonyWins(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	rec := newTestRecord(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	first, err := engine.BeginRegistration(ctx, rec, "nikhil", "nikhil@example.com")
	require.NoError(t, err)

	second, err := engine.BeginRegistration(ctx, rec, "nikhil", "nikhil@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Response.Challenge, second.Response.Challenge)

	// A response signing the abandoned first challenge must not verify.
	attestation := signAttestation(t, &authenticator, &credential, first)
	_, err = engine.FinishRegistration(ctx, rec, strings.NewReader(attestation))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindVerification, cerr.Kind)
}

func TestRegistration_DuplicateUser(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")

	var cerr *Error

	_, err := engine.BeginRegistration(ctx, newTestRecord(t), "nikhil", "other@example.com")
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConflict, cerr.Kind)

	_, err = engine.BeginRegistration(ctx, newTestRecord(t), "other", "nikhil@example.com")
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConflict, cerr.Kind)
}

func TestLoginCeremony_UserIdentified(t *testing.T) {
	engine, st, sessions := newTestEngine(t)
	ctx := context.Background()

	regRec := newTestRecord(t)
	user, credential, authenticator := registerTestUser(t, engine, regRec, "nikhil", "nikhil@example.com")

	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "nikhil")
	require.NoError(t, err)
	assert.Equal(t, testRPID, options.Response.RelyingPartyID)
	require.Len(t, options.Response.AllowedCredentials, 1)
	assert.EqualValues(t, credential.ID, []byte(options.Response.AllowedCredentials[0].CredentialID))

	// Real authenticators advance the counter on every assertion.
	credential.Counter++
	assertion := signAssertion(t, authenticator, credential, options)

	got, err := engine.FinishLogin(ctx, rec, strings.NewReader(assertion))
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "nikhil", got.Username)

	stored, err := sessions.Get(ctx, rec.Token)
	require.NoError(t, err)
	assert.True(t, stored.Authenticated())
	assert.Equal(t, user.ID, stored.UserID)
	assert.Nil(t, stored.Ceremony)

	// The reported counter was persisted exactly.
	row, err := st.GetCredentialByCredentialID(ctx, credential.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.Counter, row.SignCount)
}

func TestLoginCeremony_Discoverable(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	user, credential, _ := registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")

	// Discoverable assertions carry the user handle, so use an
	// authenticator configured with one.
	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(user.ID),
	})
	discoverable.AddCredential(*credential)

	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "")
	require.NoError(t, err)
	assert.Empty(t, options.Response.AllowedCredentials)

	credential.Counter++
	assertion := signAssertion(t, &discoverable, credential, options)

	got, err := engine.FinishLogin(ctx, rec, strings.NewReader(assertion))
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestBeginLogin_UnknownUser(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.BeginLogin(context.Background(), newTestRecord(t), "nobody")

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
}

func TestFinishLogin_WithoutBegin(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.FinishLogin(context.Background(), newTestRecord(t), strings.NewReader("{}"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindState, cerr.Kind)
}

func TestFinishLogin_UnknownCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")

	// An assertion from a credential this server never registered.
	stranger := virtualwebauthn.NewAuthenticator()
	strangerCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "")
	require.NoError(t, err)

	assertion := signAssertion(t, &stranger, &strangerCred, options)

	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
}

func TestFinishLogin_StaleCounterRejected(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	user, credential, authenticator := registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")

	// First login advances the stored counter to 1.
	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "nikhil")
	require.NoError(t, err)
	credential.Counter++
	assertion := signAssertion(t, authenticator, credential, options)
	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))
	require.NoError(t, err)

	// A fresh ceremony answered with the same counter value is a replay.
	rec = newTestRecord(t)
	options, err = engine.BeginLogin(ctx, rec, "nikhil")
	require.NoError(t, err)
	assertion = signAssertion(t, authenticator, credential, options)

	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindVerification, cerr.Kind)

	// The stored counter did not move.
	creds, err := st.GetCredentialsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, uint32(1), creds[0].SignCount)
}

func TestFinishLogin_ZeroCounterNeverAdvances(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	// Registration stores the authenticator's initial counter of zero. A
	// login that still reports zero does not advance it and is rejected.
	user, credential, authenticator := registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")
	require.Equal(t, uint32(0), credential.Counter)

	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "nikhil")
	require.NoError(t, err)
	assertion := signAssertion(t, authenticator, credential, options)

	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindVerification, cerr.Kind)

	creds, err := st.GetCredentialsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), creds[0].SignCount)
}

func TestFinishLogin_CounterPersistedExactly(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	_, credential, authenticator := registerTestUser(t, engine, newTestRecord(t), "nikhil", "nikhil@example.com")

	// Counters may jump by more than one; the reported value is stored
	// as-is, not incremented locally.
	credential.Counter = 41

	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "nikhil")
	require.NoError(t, err)
	assertion := signAssertion(t, authenticator, credential, options)
	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))
	require.NoError(t, err)

	row, err := st.GetCredentialByCredentialID(ctx, credential.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(41), row.SignCount)
}

func TestFinishLogin_CrossUserCredential(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	registerTestUser(t, engine, newTestRecord(t), "alice", "alice@example.com")
	_, bobCred, bobAuth := registerTestUser(t, engine, newTestRecord(t), "bob", "bob@example.com")

	// A ceremony begun for alice answered with bob's credential.
	rec := newTestRecord(t)
	options, err := engine.BeginLogin(ctx, rec, "alice")
	require.NoError(t, err)

	bobCred.Counter++
	assertion := signAssertion(t, bobAuth, bobCred, options)

	_, err = engine.FinishLogin(ctx, rec, strings.NewReader(assertion))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindVerification, cerr.Kind)
	assert.Equal(t, "credential verification failed", cerr.Message)
}

func TestAddCredentialCeremony(t *testing.T) {
	engine, st, sessions := newTestEngine(t)
	ctx := context.Background()

	rec := newTestRecord(t)
	user, firstCred, _ := registerTestUser(t, engine, rec, "nikhil", "nikhil@example.com")

	options, err := engine.BeginAddCredential(ctx, rec)
	require.NoError(t, err)

	// The registered credential is excluded so the authenticator refuses
	// to re-register it.
	require.Len(t, options.Response.CredentialExcludeList, 1)
	assert.EqualValues(t, firstCred.ID, []byte(options.Response.CredentialExcludeList[0].CredentialID))

	secondAuth := virtualwebauthn.NewAuthenticator()
	secondCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	attestation := signAttestation(t, &secondAuth, &secondCred, options)

	row, err := engine.FinishAddCredential(ctx, rec, strings.NewReader(attestation))
	require.NoError(t, err)
	assert.Equal(t, user.ID, row.UserID)
	secondAuth.AddCredential(secondCred)

	creds, err := st.GetCredentialsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	// The session identity survived the ceremony.
	stored, err := sessions.Get(ctx, rec.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.Nil(t, stored.Ceremony)

	// The new credential can answer a login.
	loginRec := newTestRecord(t)
	loginOptions, err := engine.BeginLogin(ctx, loginRec, "nikhil")
	require.NoError(t, err)
	require.Len(t, loginOptions.Response.AllowedCredentials, 2)

	secondCred.Counter++
	assertion := signAssertion(t, &secondAuth, &secondCred, loginOptions)
	got, err := engine.FinishLogin(ctx, loginRec, strings.NewReader(assertion))
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestFinishAddCredential_WithoutBegin(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	rec := newTestRecord(t)
	registerTestUser(t, engine, rec, "nikhil", "nikhil@example.com")

	_, err := engine.FinishAddCredential(context.Background(), rec, strings.NewReader("{}"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindState, cerr.Kind)
}

func TestCeremonyKindsDoNotCross(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	rec := newTestRecord(t)

	// A login finish cannot consume a registration ceremony.
	_, err := engine.BeginRegistration(ctx, rec, "nikhil", "nikhil@example.com")
	require.NoError(t, err)

	_, err = engine.FinishLogin(ctx, rec, strings.NewReader("{}"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindState, cerr.Kind)
}
