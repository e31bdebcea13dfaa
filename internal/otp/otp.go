package otp

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"
)

// Store is the slice of *sql.DB the service needs; Begin() is included for
// the transactional verify path.
type Store interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Begin() (*sql.Tx, error)
}

// Sender delivers the code to the user; the production implementation is
// mailer.SendGrid.
type Sender interface {
	Send(toEmail, subject, body string) error
}

type Service struct {
	DB     Store
	Digits int
	TTL    time.Duration
	Mail   Sender
}

func randomDigits(n int) (string, error) {
	res := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		res[i] = byte('0' + v.Int64())
	}
	return string(res), nil
}

func (s *Service) Generate(email, purpose string) (string, error) {
	code, err := randomDigits(s.Digits)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(s.TTL)

	_, err = s.DB.Exec(
		`INSERT INTO otp_codes (email, code, purpose, expires_at)
         VALUES (?, ?, ?, ?)`,
		email, code, purpose, expiresAt,
	)
	if err != nil {
		return "", err
	}

	if s.Mail != nil {
		subject := fmt.Sprintf("GeekZone %s code", purpose)
		body := fmt.Sprintf("Your verification code for %s on GeekZone: %s", purpose, code)
		if err := s.Mail.Send(email, subject, body); err != nil {
			return "", fmt.Errorf("failed to send email: %w", err)
		}
	}

	return code, nil
}

func (s *Service) Verify(email, purpose, code string) (bool, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return false, err
	}
	// No-op if commit succeeds.
	defer tx.Rollback()

	// Cleanup expired codes inside the transaction.
	_, _ = tx.Exec(`DELETE FROM otp_codes WHERE expires_at <= CURRENT_TIMESTAMP`)

	var n int
	row := tx.QueryRow(
		`SELECT COUNT(1) FROM otp_codes
         WHERE email=? AND purpose=? AND code=?
           AND expires_at > CURRENT_TIMESTAMP`,
		email, purpose, code,
	)

	if err := row.Scan(&n); err != nil {
		return false, err
	}

	if n == 1 {
		// Single use: delete after a successful match.
		_, err := tx.Exec(
			`DELETE FROM otp_codes
             WHERE email=? AND purpose=? AND code=?`,
			email, purpose, code,
		)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	return false, nil
}
