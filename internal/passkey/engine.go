// ABOUTME: Passkey ceremony engine for registration, login, and added credentials
// ABOUTME: Drives go-webauthn against the store and keeps ceremony state in the session

package passkey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/cortadohq/cortado/internal/metrics"
	"github.com/cortadohq/cortado/internal/session"
	"github.com/cortadohq/cortado/internal/store"
)

// challengeLifetime bounds how long a begin/verify pair may be apart. The
// library stamps it into the ceremony options and enforces it at verify.
const challengeLifetime = 5 * time.Minute

// RelyingParty identifies this server to authenticators.
type RelyingParty struct {
	DisplayName string
	ID          string
	Origins     []string
}

// DeriveRelyingParty extracts the RP id and origins from a base URL,
// falling back to localhost defaults when the URL is empty or unusable.
func DeriveRelyingParty(displayName, baseURL string) RelyingParty {
	rp := RelyingParty{
		DisplayName: displayName,
		ID:          "localhost",
		Origins:     []string{"http://localhost", "https://localhost"},
	}

	if baseURL == "" {
		return rp
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return rp
	}

	host := parsed.Hostname()
	if host == "" {
		return rp
	}

	rp.ID = host
	rp.Origins = []string{baseURL}
	// Also allow the other scheme variant of the same host
	if parsed.Scheme == "https" {
		rp.Origins = append(rp.Origins, "http://"+parsed.Host)
	} else {
		rp.Origins = append(rp.Origins, "https://"+parsed.Host)
	}
	return rp
}

// Engine runs passkey ceremonies. Each ceremony step is a single call;
// everything that has to survive between begin and finish lives in the
// caller's session record, which the engine writes back through the
// session store.
type Engine struct {
	webauthn *webauthn.WebAuthn
	store    store.Store
	sessions session.Store
	logger   *slog.Logger
}

// New builds an Engine for the given relying party.
func New(rp RelyingParty, st store.Store, sessions session.Store, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wconfig := &webauthn.Config{
		RPDisplayName: rp.DisplayName,
		RPID:          rp.ID,
		RPOrigins:     rp.Origins,
		Timeouts: webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    challengeLifetime,
				TimeoutUVD: challengeLifetime,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    challengeLifetime,
				TimeoutUVD: challengeLifetime,
			},
		},
	}

	w, err := webauthn.New(wconfig)
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	return &Engine{
		webauthn: w,
		store:    st,
		sessions: sessions,
		logger:   logger.With("component", "passkey"),
	}, nil
}

func defaultRegistrationOptions() []webauthn.RegistrationOption {
	return []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	}
}

// BeginRegistration starts a registration ceremony for a new account and
// stores the challenge and pending identity in rec. Any ceremony already
// in progress on rec is abandoned: the latest begin wins.
func (e *Engine) BeginRegistration(ctx context.Context, rec *session.Record, username, email string) (*protocol.CredentialCreation, error) {
	if msg := validateUsername(username); msg != "" {
		return nil, validationError(msg)
	}
	if msg := validateEmail(email); msg != "" {
		return nil, validationError(msg)
	}

	// Fast duplicate check. The unique constraints inside the finish
	// transaction remain authoritative under races.
	if _, err := e.store.GetUserByUsername(ctx, username); err == nil {
		return nil, conflictError("username already taken", store.ErrUsernameExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if _, err := e.store.GetUserByEmail(ctx, email); err == nil {
		return nil, conflictError("email already registered", store.ErrEmailExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	// The pending id becomes the user handle inside the credential, so it
	// is also the id the account is created with at finish.
	user := pendingUser(uuid.NewString(), username, email)

	options, data, err := e.webauthn.BeginRegistration(user, defaultRegistrationOptions()...)
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}

	rec.Ceremony = &session.Ceremony{
		Kind:     session.CeremonyRegistration,
		Data:     data,
		Username: username,
		Email:    email,
		UserID:   user.id,
	}
	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing ceremony: %w", err)
	}

	e.logger.Debug("registration ceremony started", "username", username)
	return options, nil
}

// FinishRegistration verifies the authenticator's attestation response,
// creates the user and their first credential in one transaction, and
// authenticates the session. The challenge is consumed whether or not
// verification succeeds.
func (e *Engine) FinishRegistration(ctx context.Context, rec *session.Record, body io.Reader) (*store.User, error) {
	ceremony := rec.Ceremony
	if ceremony == nil || ceremony.Kind != session.CeremonyRegistration {
		return nil, stateError("no registration ceremony in progress")
	}
	rec.Ceremony = nil

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	user := pendingUser(ceremony.UserID, ceremony.Username, ceremony.Email)
	cred, err := e.webauthn.CreateCredential(user, *ceremony.Data, parsed)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	row := &store.User{
		ID:        ceremony.UserID,
		Username:  ceremony.Username,
		Email:     ceremony.Email,
		CreatedAt: time.Now(),
	}
	credRow, err := storeCredential(row.ID, cred)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("encoding credential: %w", err))
	}

	if err := e.store.CreateUserWithCredential(ctx, row, credRow); err != nil {
		if conflict := conflictFromStore(err); conflict != nil {
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, conflict)
		}
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("creating user: %w", err))
	}

	// Ceremony fields were cleared above, so one write both consumes the
	// challenge and binds the identity.
	rec.UserID = row.ID
	rec.Username = row.Username
	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	metrics.RecordCeremony(string(session.CeremonyRegistration), metrics.ResultSuccess)
	e.logger.Info("registration complete", "user_id", row.ID, "username", row.Username)
	return row, nil
}

// BeginLogin starts an authentication ceremony. With a username the
// options carry an allow-list of exactly that user's credentials; with an
// empty username the ceremony is discoverable and any resident credential
// for this RP may answer.
func (e *Engine) BeginLogin(ctx context.Context, rec *session.Record, username string) (*protocol.CredentialAssertion, error) {
	var (
		options *protocol.CredentialAssertion
		data    *webauthn.SessionData
		userID  string
	)

	if username != "" {
		user, err := e.store.GetUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFoundError("unknown user", err)
			}
			return nil, fmt.Errorf("looking up user: %w", err)
		}

		creds, err := e.store.GetCredentialsByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		if len(creds) == 0 {
			return nil, notFoundError("no credentials registered", nil)
		}

		options, data, err = e.webauthn.BeginLogin(storedUser(user, creds))
		if err != nil {
			return nil, fmt.Errorf("beginning login: %w", err)
		}
		userID = user.ID
	} else {
		var err error
		options, data, err = e.webauthn.BeginDiscoverableLogin()
		if err != nil {
			return nil, fmt.Errorf("beginning discoverable login: %w", err)
		}
	}

	rec.Ceremony = &session.Ceremony{
		Kind:   session.CeremonyLogin,
		Data:   data,
		UserID: userID,
	}
	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing ceremony: %w", err)
	}

	e.logger.Debug("login ceremony started", "discoverable", username == "")
	return options, nil
}

// FinishLogin verifies the authenticator's assertion response, advances
// the credential's sign counter, and authenticates the session. The
// challenge is consumed whether or not verification succeeds.
func (e *Engine) FinishLogin(ctx context.Context, rec *session.Record, body io.Reader) (*store.User, error) {
	ceremony := rec.Ceremony
	if ceremony == nil || ceremony.Kind != session.CeremonyLogin {
		return nil, stateError("no login ceremony in progress")
	}
	rec.Ceremony = nil

	parsed, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	storedCred, err := e.store.GetCredentialByCredentialID(ctx, parsed.RawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, notFoundError("unknown credential", err))
		}
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("looking up credential: %w", err))
	}

	user, err := e.store.GetUser(ctx, storedCred.UserID)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("loading user: %w", err))
	}
	creds, err := e.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("loading credentials: %w", err))
	}
	waUser := storedUser(user, creds)

	var cred *webauthn.Credential
	if ceremony.UserID != "" {
		// User-identified flow: the library rejects the assertion when the
		// credential does not belong to the user the ceremony began for.
		cred, err = e.webauthn.ValidateLogin(waUser, *ceremony.Data, parsed)
	} else {
		cred, err = e.webauthn.ValidateDiscoverableLogin(credentialFinder(waUser), *ceremony.Data, parsed)
	}
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	if cred.Authenticator.CloneWarning {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(errors.New("sign counter did not advance")))
	}

	// The guarded update is the authoritative replay check: the write only
	// lands when the reported counter is strictly greater than the stored
	// one, so two concurrent replays of a single assertion cannot both pass.
	if err := e.store.UpdateCredentialSignCount(ctx, storedCred.ID, cred.Authenticator.SignCount); err != nil {
		switch {
		case errors.Is(err, store.ErrStaleCounter):
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
		case errors.Is(err, store.ErrNotFound):
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, notFoundError("unknown credential", err))
		default:
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("updating sign count: %w", err))
		}
	}

	rec.UserID = user.ID
	rec.Username = user.Username
	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	metrics.RecordCeremony(string(session.CeremonyLogin), metrics.ResultSuccess)
	e.logger.Info("login complete", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// BeginAddCredential starts a registration ceremony for a further passkey
// on an already authenticated account. Every registered credential goes
// into the exclusion list so the authenticator refuses to re-register a
// key it already holds.
func (e *Engine) BeginAddCredential(ctx context.Context, rec *session.Record) (*protocol.CredentialCreation, error) {
	user, err := e.store.GetUser(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("unknown user", err)
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	creds, err := e.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		lc := libraryCredential(c)
		exclusions = append(exclusions, lc.Descriptor())
	}

	opts := append(defaultRegistrationOptions(), webauthn.WithExclusions(exclusions))
	options, data, err := e.webauthn.BeginRegistration(storedUser(user, creds), opts...)
	if err != nil {
		return nil, fmt.Errorf("beginning credential registration: %w", err)
	}

	rec.Ceremony = &session.Ceremony{
		Kind:   session.CeremonyAddCredential,
		Data:   data,
		UserID: user.ID,
	}
	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing ceremony: %w", err)
	}

	e.logger.Debug("add-credential ceremony started", "user_id", user.ID)
	return options, nil
}

// FinishAddCredential verifies the attestation response and stores the
// new credential. The session identity is already set and stays untouched.
func (e *Engine) FinishAddCredential(ctx context.Context, rec *session.Record, body io.Reader) (*store.Credential, error) {
	ceremony := rec.Ceremony
	if ceremony == nil || ceremony.Kind != session.CeremonyAddCredential {
		return nil, stateError("no credential registration in progress")
	}
	rec.Ceremony = nil

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	user, err := e.store.GetUser(ctx, ceremony.UserID)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("loading user: %w", err))
	}
	creds, err := e.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("loading credentials: %w", err))
	}

	cred, err := e.webauthn.CreateCredential(storedUser(user, creds), *ceremony.Data, parsed)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, verificationError(err))
	}

	row, err := storeCredential(user.ID, cred)
	if err != nil {
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("encoding credential: %w", err))
	}
	if err := e.store.CreateCredential(ctx, row); err != nil {
		if conflict := conflictFromStore(err); conflict != nil {
			return nil, e.failCeremony(ctx, rec, ceremony.Kind, conflict)
		}
		return nil, e.failCeremony(ctx, rec, ceremony.Kind, fmt.Errorf("saving credential: %w", err))
	}

	if err := e.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	metrics.RecordCeremony(string(session.CeremonyAddCredential), metrics.ResultSuccess)
	e.logger.Info("credential added", "user_id", user.ID, "credential_id", row.ID)
	return row, nil
}

// failCeremony persists the cleared ceremony state so the challenge cannot
// be replayed, records the failure, and returns err unchanged.
func (e *Engine) failCeremony(ctx context.Context, rec *session.Record, kind session.CeremonyKind, err error) error {
	if putErr := e.sessions.Put(ctx, rec); putErr != nil {
		e.logger.Error("failed to consume ceremony state", "error", putErr)
	}
	metrics.RecordCeremony(string(kind), metrics.ResultFailure)
	e.logger.Warn("ceremony failed", "ceremony", string(kind), "error", err)
	return err
}

// credentialFinder returns the discoverable-login callback. The user was
// already resolved from the asserted credential id; the callback verifies
// the authenticator-reported handle matches before handing the user back
// to the library.
func credentialFinder(waUser *ceremonyUser) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != waUser.id {
			return nil, errors.New("user handle mismatch")
		}
		return waUser, nil
	}
}

// Username validation regex: alphanumeric + underscores, 3-32 characters
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

// Email validation regex: local part, @, domain with a dot
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validateUsername checks if username meets requirements
// Returns an error message or empty string if valid
func validateUsername(username string) string {
	if strings.TrimSpace(username) == "" {
		return "username is required"
	}
	if len(username) < 3 {
		return "username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}

// validateEmail checks if email looks like a deliverable address
// Returns an error message or empty string if valid
func validateEmail(email string) string {
	if strings.TrimSpace(email) == "" {
		return "email is required"
	}
	if len(email) > 254 {
		return "email must be at most 254 characters"
	}
	if !emailRegex.MatchString(email) {
		return "email is not a valid address"
	}
	return ""
}
