// Package apk implements Android APK Signing Scheme v2 parsing and
// verification: locating the central directory and signing block within an
// APK's ZIP container, rolling up the 1MB-chunked content digest, and
// verifying each signer's certificate and signature.
package apk

// Status is the numeric validation outcome code shared with the rest of the
// validator; it mirrors the wire-level status a ValidationResult carries.
type Status int

const (
	StatusUnavailable Status = 0
	StatusSuccess     Status = 1

	StatusInvalidApkFormat      Status = 10
	StatusInvalidSignBlockFormat Status = 11
	StatusZip64NotSupported     Status = 12
	StatusHashMismatch          Status = 13

	StatusTooManySigners Status = 20
	StatusNoSignersFound Status = 21
	StatusNoDigestFound  Status = 22

	StatusUnknownSignatureAlgorithm  Status = 30
	StatusIncorrectEncryptionData    Status = 31
	StatusSignaturesNotFound         Status = 32
	StatusInvalidSignature           Status = 33

	StatusDigestAndSignatureAlgorithmsMismatch   Status = 40
	StatusPreviousDigestForSameAlgorithmMismatch Status = 41

	StatusNoCertificatesFound  Status = 50
	StatusPubKeyFromCertMismatch Status = 51

	StatusNoKnownDigestToCheck  Status = 60
	StatusDigestMismatch        Status = 61
	StatusTooManyChunks         Status = 62
	StatusDigestAlgorithmNotFound Status = 63

	StatusProofNotFound      Status = 70
	StatusIncorrectCertFormat Status = 71
	StatusInvalidProof       Status = 75
)

var statusNames = map[Status]string{
	StatusUnavailable:                            "Unavailable",
	StatusSuccess:                                "Success",
	StatusInvalidApkFormat:                        "InvalidApkFormat",
	StatusInvalidSignBlockFormat:                  "InvalidSignBlockFormat",
	StatusZip64NotSupported:                       "Zip64NotSupported",
	StatusHashMismatch:                            "HashMismatch",
	StatusTooManySigners:                          "TooManySigners",
	StatusNoSignersFound:                          "NoSignersFound",
	StatusNoDigestFound:                           "NoDigestFound",
	StatusUnknownSignatureAlgorithm:               "UnknownSignatureAlgorithm",
	StatusIncorrectEncryptionData:                 "IncorrectEncryptionData",
	StatusSignaturesNotFound:                      "SignaturesNotFound",
	StatusInvalidSignature:                        "InvalidSignature",
	StatusDigestAndSignatureAlgorithmsMismatch:    "DigestAndSignatureAlgorithmsMismatch",
	StatusPreviousDigestForSameAlgorithmMismatch:  "PreviousDigestForSameAlgorithmMismatch",
	StatusNoCertificatesFound:                     "NoCertificatesFound",
	StatusPubKeyFromCertMismatch:                  "PubKeyFromCertMismatch",
	StatusNoKnownDigestToCheck:                    "NoKnownDigestToCheck",
	StatusDigestMismatch:                          "DigestMismatch",
	StatusTooManyChunks:                           "TooManyChunks",
	StatusDigestAlgorithmNotFound:                 "DigestAlgorithmNotFound",
	StatusProofNotFound:                           "ProofNotFound",
	StatusIncorrectCertFormat:                     "IncorrectCertFormat",
	StatusInvalidProof:                            "InvalidProof",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Error pairs a Status with the low-level cause, if any, so callers can log
// the detail while the rest of the system only needs the numeric code.
type Error struct {
	Status Status
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Status.String() + ": " + e.Cause.Error()
	}
	return e.Status.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Fail builds an *Error with no underlying cause.
func Fail(s Status) error { return &Error{Status: s} }

// Wrap builds an *Error carrying an underlying cause.
func Wrap(s Status, cause error) error { return &Error{Status: s, Cause: cause} }
