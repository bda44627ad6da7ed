package twofactor

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// CodeLength is the number of digits in a TOTP code.
	CodeLength = 6

	secretBytes   = 20
	defaultPeriod = 30
	defaultQRSize = 256
)

var errEmptyAccount = errors.New("totp account name required")

// Config controls TOTP key generation and validation.
type Config struct {
	Issuer string
	Period uint
	Skew   uint
	QRSize int
}

// TOTP wraps pquerna/otp with a fixed SHA1 / 6 digit profile, which is what
// every mainstream authenticator app expects.
type TOTP struct {
	issuer string
	period uint
	skew   uint
	qrSize int
}

func NewTOTP(cfg Config) *TOTP {
	t := &TOTP{issuer: cfg.Issuer, period: cfg.Period, skew: cfg.Skew, qrSize: cfg.QRSize}
	if t.period == 0 {
		t.period = defaultPeriod
	}
	if t.qrSize <= 0 {
		t.qrSize = defaultQRSize
	}
	return t
}

// NewKey draws a fresh secret from r and returns the provisioning key for
// accountName.
func (t *TOTP) NewKey(r io.Reader, accountName string) (*otp.Key, error) {
	if accountName == "" {
		return nil, errEmptyAccount
	}
	raw := make([]byte, secretBytes)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read totp secret: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", t.issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("period", fmt.Sprintf("%d", t.period))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + t.issuer + ":" + accountName,
		RawQuery: q.Encode(),
	}
	return otp.NewKeyFromURL(u.String())
}

// Validate checks a 6 digit code against secret at now, accepting the
// configured number of steps either side.
func (t *TOTP) Validate(code, secret string, now time.Time) bool {
	if len(code) != CodeLength || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, t.validateOpts())
	return err == nil && ok
}

// Code returns the code for secret at now. Used by tests and tooling.
func (t *TOTP) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now, t.validateOpts())
}

// QRCodeDataURI renders the key's otpauth URI as a PNG data URI.
func (t *TOTP) QRCodeDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(t.qrSize, t.qrSize)
	if err != nil {
		return "", fmt.Errorf("render totp qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode totp qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (t *TOTP) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    t.period,
		Skew:      t.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
