package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

// codeKind is the shape of a second-factor code. Login takes TOTP codes and
// recovery codes in the same field.
type codeKind int

const (
	codeMalformed codeKind = iota
	codeTOTP
	codeRecovery
)

const (
	totpDigits          = 6
	totpPeriod          = 30 // seconds
	recoveryCodeCount   = 8
	recoveryGroupLength = 4
)

// recoveryCodeAlphabet leaves out 0/O and 1/I/L.
const recoveryCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// TOTPSetup is what a user needs to add the account to an authenticator app.
type TOTPSetup struct {
	Secret string // base32, for manual entry
	URL    string // otpauth:// URL
	QRCode []byte // PNG of URL
}

// classifyCode normalizes a code as typed by the user and reports its kind.
// Whitespace is dropped ("123 456") and recovery codes are upper-cased with
// the dash restored, so "a3bk9xmz" becomes "A3BK-9XMZ".
func classifyCode(raw string) (string, codeKind) {
	code := strings.ToUpper(strings.Join(strings.Fields(raw), ""))

	if len(code) == totpDigits && strings.IndexFunc(code, notDigit) == -1 {
		return code, codeTOTP
	}

	groups := strings.ReplaceAll(code, "-", "")
	if len(groups) != 2*recoveryGroupLength || strings.Count(code, "-") > 1 {
		return code, codeMalformed
	}
	if strings.Contains(code, "-") && code[recoveryGroupLength] != '-' {
		return code, codeMalformed
	}
	for _, r := range groups {
		if !strings.ContainsRune(recoveryCodeAlphabet, r) {
			return code, codeMalformed
		}
	}
	return groups[:recoveryGroupLength] + "-" + groups[recoveryGroupLength:], codeRecovery
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// verifyTOTP checks a normalized six-digit code against the secret at the
// given time, allowing one period of clock drift either way.
func verifyTOTP(code, secret string, at time.Time) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// newTOTPSetup generates a secret for accountName and renders its otpauth
// URL as a 256px QR code.
func newTOTPSetup(issuer, accountName string) (*TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generating TOTP secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("rendering TOTP QR code: %w", err)
	}
	return &TOTPSetup{Secret: key.Secret(), URL: key.URL(), QRCode: png}, nil
}

// newRecoveryCodes returns the plaintext codes shown once to the user and
// the bcrypt hashes that are stored in their place.
func newRecoveryCodes() (plain, hashed []string, err error) {
	plain = make([]string, 0, recoveryCodeCount)
	hashed = make([]string, 0, recoveryCodeCount)
	for len(plain) < recoveryCodeCount {
		first, err := randomGroup()
		if err != nil {
			return nil, nil, err
		}
		second, err := randomGroup()
		if err != nil {
			return nil, nil, err
		}
		code := first + "-" + second

		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing recovery code: %w", err)
		}
		plain = append(plain, code)
		hashed = append(hashed, string(hash))
	}
	return plain, hashed, nil
}

func randomGroup() (string, error) {
	n := big.NewInt(int64(len(recoveryCodeAlphabet)))
	var b strings.Builder
	for range recoveryGroupLength {
		i, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("generating recovery code: %w", err)
		}
		b.WriteByte(recoveryCodeAlphabet[i.Int64()])
	}
	return b.String(), nil
}

// matchRecoveryCode returns the index of the stored hash that matches the
// normalized code, or -1.
func matchRecoveryCode(code string, hashes []string) int {
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return i
		}
	}
	return -1
}
