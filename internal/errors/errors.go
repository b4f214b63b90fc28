// Package errors defines the typed error taxonomy shared by all components.
// Leaf operations return these errors; the HTTP boundary maps codes to status.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies specific error conditions
type Code int

const (
	// Generic
	CodeIo Code = iota
	CodeHTTP
	CodeUTF8
	CodeSerialization
	CodeURLParse

	// JWT / OIDC
	CodeJwtMissingKid
	CodeJwtKeyNotFound
	CodeJwt
	CodeJwtMissingName

	// CSR / key policy
	CodeCsrMissingPublicKey
	CodeCsrVerificationFailed
	CodeKeyPolicyRsaTooSmall
	CodeKeyPolicyUnknownEcCurve
	CodeKeyPolicyUnsupportedEcCurve
	CodeKeyPolicyUnsupportedKeyType

	// External command execution
	CodeCommandSpawn
	CodeCommandFailed

	// Upstream / workers
	CodeUpstream
	CodeCrl
)

func (c Code) String() string {
	switch c {
	case CodeIo:
		return "Io"
	case CodeHTTP:
		return "Http"
	case CodeUTF8:
		return "Utf8"
	case CodeSerialization:
		return "Serialization"
	case CodeURLParse:
		return "UrlParse"
	case CodeJwtMissingKid:
		return "JwtMissingKid"
	case CodeJwtKeyNotFound:
		return "JwtKeyNotFound"
	case CodeJwt:
		return "JwtError"
	case CodeJwtMissingName:
		return "JwtMissingName"
	case CodeCsrMissingPublicKey:
		return "CsrMissingPublicKey"
	case CodeCsrVerificationFailed:
		return "CsrVerificationFailed"
	case CodeKeyPolicyRsaTooSmall:
		return "KeyPolicyRsaTooSmall"
	case CodeKeyPolicyUnknownEcCurve:
		return "KeyPolicyUnknownEcCurve"
	case CodeKeyPolicyUnsupportedEcCurve:
		return "KeyPolicyUnsupportedEcCurve"
	case CodeKeyPolicyUnsupportedKeyType:
		return "KeyPolicyUnsupportedKeyType"
	case CodeCommandSpawn:
		return "CommandSpawn"
	case CodeCommandFailed:
		return "CommandFailed"
	case CodeUpstream:
		return "UpstreamError"
	case CodeCrl:
		return "CrlError"
	default:
		return "Unknown"
	}
}

// Error carries a taxonomy code alongside a message and optional cause
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code wrapping a cause
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// JwtMissingKid reports a JWT header without a kid
func JwtMissingKid() *Error {
	return New(CodeJwtMissingKid, "JWT header missing 'kid'")
}

// JwtKeyNotFound reports a kid with no matching JWK
func JwtKeyNotFound(kid string) *Error {
	return New(CodeJwtKeyNotFound, fmt.Sprintf("no matching JWK found for kid: %s", kid))
}

// Jwt wraps a signature or claims validation failure
func Jwt(err error) *Error {
	return Wrap(CodeJwt, "JWT validation failed", err)
}

// JwtMissingName reports claims without a usable display name
func JwtMissingName() *Error {
	return New(CodeJwtMissingName, "JWT payload missing 'name'")
}

// CsrMissingPublicKey reports a CSR without an extractable public key
func CsrMissingPublicKey() *Error {
	return New(CodeCsrMissingPublicKey, "CSR missing public key")
}

// CsrVerificationFailed reports a CSR whose self-signature does not verify
func CsrVerificationFailed() *Error {
	return New(CodeCsrVerificationFailed, "CSR verification failed")
}

// KeyPolicyRsaTooSmall reports an RSA key under the minimum modulus size
func KeyPolicyRsaTooSmall(bits int) *Error {
	return New(CodeKeyPolicyRsaTooSmall, fmt.Sprintf("RSA key too small: %d bits (min 2048)", bits))
}

// KeyPolicyUnknownEcCurve reports an EC key on an unrecognized curve
func KeyPolicyUnknownEcCurve() *Error {
	return New(CodeKeyPolicyUnknownEcCurve, "unknown EC curve")
}

// KeyPolicyUnsupportedEcCurve reports an EC key on a known but disallowed curve
func KeyPolicyUnsupportedEcCurve(name string) *Error {
	return New(CodeKeyPolicyUnsupportedEcCurve, fmt.Sprintf("unsupported EC curve: %s (only P-256 allowed)", name))
}

// KeyPolicyUnsupportedKeyType reports a public key of a disallowed type
func KeyPolicyUnsupportedKeyType(kind string) *Error {
	return New(CodeKeyPolicyUnsupportedKeyType, fmt.Sprintf("unsupported key type: %s", kind))
}

// CommandSpawn reports a failure to start an external program
func CommandSpawn(program string, err error) *Error {
	return Wrap(CodeCommandSpawn, fmt.Sprintf("failed to spawn program %q", program), err)
}

// CommandFailed reports an external program exiting non-zero
func CommandFailed(program string, code int) *Error {
	return New(CodeCommandFailed, fmt.Sprintf("program %q exited with status %d", program, code))
}

// Upstream reports a failed upstream exchange
func Upstream(detail string) *Error {
	return New(CodeUpstream, fmt.Sprintf("upstream error: %s", detail))
}

// Crl reports a CRL construction failure
func Crl(message string, err error) *Error {
	return Wrap(CodeCrl, message, err)
}

// CodeOf recovers the taxonomy code from anywhere in a wrap chain
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsPolicy reports whether err is a CSR or key-policy violation, the subset
// the signing endpoint maps to 400 instead of 500
func IsPolicy(err error) bool {
	c, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch c {
	case CodeCsrMissingPublicKey,
		CodeCsrVerificationFailed,
		CodeKeyPolicyRsaTooSmall,
		CodeKeyPolicyUnknownEcCurve,
		CodeKeyPolicyUnsupportedEcCurve,
		CodeKeyPolicyUnsupportedKeyType:
		return true
	}
	return false
}
