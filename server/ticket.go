package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ticketSecretKey = "ticket_secret"

var (
	ErrTicketInvalid   = errors.New("invalid ticket")
	ErrTicketWrongRoom = errors.New("ticket is for another room")
)

// Tickets signs and checks room join tickets. A ticket is an HS256 JWT
// whose subject is the room id.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTickets uses secret when given. Otherwise the secret comes from the
// database settings, or is generated and stored there.
func NewTickets(db *DB, secret string, ttl time.Duration, log *zap.Logger) *Tickets {
	key := []byte(secret)
	if secret == "" {
		key = loadOrCreateSecret(db, log)
	}
	return &Tickets{secret: key, ttl: ttl, now: time.Now}
}

func loadOrCreateSecret(db *DB, log *zap.Logger) []byte {
	if db != nil {
		if h := db.GetSetting(ticketSecretKey); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate ticket secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(ticketSecretKey, hex.EncodeToString(secret)); err != nil {
			log.Warn("could not persist ticket secret", zap.Error(err))
		}
	}
	return secret
}

// Issue returns a ticket for roomID.
func (t *Tickets) Issue(roomID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   roomID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks that token is a live ticket for roomID.
func (t *Tickets) Verify(token, roomID string) error {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}
	if claims.Subject != roomID {
		return ErrTicketWrongRoom
	}
	return nil
}
