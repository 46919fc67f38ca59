package oidc

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/square/go-jose.v2"
)

// RequestState is the transient protocol state carried through the "state"
// query parameter of one authorization round trip.  It is created when a
// login redirect is built and consumed exactly once when the provider
// redirects back.
type RequestState struct {
	// SessionID identifies the host session that initiated the login.
	SessionID int

	// UIStateID identifies the host UI state to resume after the login.
	UIStateID int

	// ActionID optionally identifies a pending host callback action to
	// trigger on resume.  May be empty.
	ActionID string
}

// Sealer is the host's authenticated-encryption primitive.  Confidentiality
// of the sealed payload is not required by this package, tamper evidence is:
// Open must fail for any sealed value it did not produce.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// jwsSealer authenticates payloads as compact HS256 JWS messages.  It is the
// default Sealer when the host doesn't provide one.
type jwsSealer struct {
	key []byte
}

// NewJWSSealer returns a Sealer signing payloads with HS256 over the given
// symmetric key.
func NewJWSSealer(key []byte) (Sealer, error) {
	const op = "NewJWSSealer"
	if len(key) == 0 {
		return nil, fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	return &jwsSealer{key: key}, nil
}

func (s *jwsSealer) Seal(plaintext []byte) (string, error) {
	const op = "jwsSealer.Seal"
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: s.key}, nil)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create signer: %w", op, err)
	}
	sig, err := signer.Sign(plaintext)
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign payload: %w", op, err)
	}
	sealed, err := sig.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to serialize payload: %w", op, err)
	}
	return sealed, nil
}

func (s *jwsSealer) Open(sealed string) ([]byte, error) {
	const op = "jwsSealer.Open"
	sig, err := jose.ParseSigned(sealed)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed payload: %w", op, err)
	}
	plaintext, err := sig.Verify(s.key)
	if err != nil {
		return nil, fmt.Errorf("%s: payload failed verification: %w", op, err)
	}
	return plaintext, nil
}

const stateDelimiter = "#"

// packState packs the three state fields into the fixed-delimiter form
// "session#uiState#action".
func packState(s RequestState) []byte {
	return []byte(fmt.Sprintf("%d%s%d%s%s", s.SessionID, stateDelimiter, s.UIStateID, stateDelimiter, s.ActionID))
}

// unpackState is the inverse of packState.  The action id is the final,
// possibly empty, segment and may itself contain the delimiter.
func unpackState(raw []byte) (RequestState, error) {
	const op = "unpackState"
	parts := strings.SplitN(string(raw), stateDelimiter, 3)
	if len(parts) != 3 {
		return RequestState{}, fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	sessionID, err := strconv.Atoi(parts[0])
	if err != nil {
		return RequestState{}, fmt.Errorf("%s: malformed session id: %w", op, ErrInvalidState)
	}
	uiStateID, err := strconv.Atoi(parts[1])
	if err != nil {
		return RequestState{}, fmt.Errorf("%s: malformed ui state id: %w", op, ErrInvalidState)
	}
	return RequestState{
		SessionID: sessionID,
		UIStateID: uiStateID,
		ActionID:  parts[2],
	}, nil
}

// EncodeState seals a RequestState into the externally visible form
// "#<ident>#<sealed>".  The ident prefix lets a single callback endpoint
// dispatch the parameter to the right provider instance.
func (p *Provider) EncodeState(s RequestState) (string, error) {
	const op = "Provider.EncodeState"
	sealed, err := p.sealer.Seal(packState(s))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return stateDelimiter + p.Ident() + stateDelimiter + sealed, nil
}

// DecodeState reverses EncodeState.  Any tampering, truncation, or a
// mismatched provider ident fails with ErrInvalidState; callers must never
// report decode details to the end user.
func (p *Provider) DecodeState(param string) (RequestState, error) {
	const op = "Provider.DecodeState"
	ident, sealed, err := splitStateParam(param)
	if err != nil {
		return RequestState{}, fmt.Errorf("%s: %w", op, err)
	}
	if ident != p.Ident() {
		return RequestState{}, fmt.Errorf("%s: state addressed to %q: %w", op, ident, ErrInvalidState)
	}
	raw, err := p.sealer.Open(sealed)
	if err != nil {
		return RequestState{}, fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	s, err := unpackState(raw)
	if err != nil {
		return RequestState{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// splitStateParam splits "#<ident>#<sealed>" into its parts.  The sealed
// payload never contains the delimiter, so the last delimiter is the
// boundary.
func splitStateParam(param string) (ident, sealed string, err error) {
	const op = "splitStateParam"
	if !strings.HasPrefix(param, stateDelimiter) {
		return "", "", fmt.Errorf("%s: missing prefix: %w", op, ErrInvalidState)
	}
	rest := strings.TrimPrefix(param, stateDelimiter)
	idx := strings.LastIndex(rest, stateDelimiter)
	if idx <= 0 {
		return "", "", fmt.Errorf("%s: missing provider ident: %w", op, ErrInvalidState)
	}
	return rest[:idx], rest[idx+1:], nil
}
