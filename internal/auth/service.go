package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// StartingBalance is the demo account's opening balance in EUR
	StartingBalance = 100000.0

	tokenTTL = 24 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// SessionUser is the identity returned on login
type SessionUser struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	IsAdmin  bool    `json:"is_admin"`
	Balance  float64 `json:"balance"`
}

// seededCredential is the single demo account. The hash is computed at
// startup from configuration so the plaintext never lives in the binary.
type seededCredential struct {
	username     string
	passwordHash []byte
	isAdmin      bool
}

// Service implements the demo authentication surface: one seeded
// credential, deterministic user ids and signed session tokens.
type Service struct {
	credential seededCredential
	jwtSecret  []byte
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(username, password, jwtSecret string, isAdmin bool, logger *zap.Logger) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash seeded credential: %w", err)
	}
	return &Service{
		credential: seededCredential{username: username, passwordHash: hash, isAdmin: isAdmin},
		jwtSecret:  []byte(jwtSecret),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Login checks the credential and returns the session user with a signed
// token. The user id is derived from the username so the same account maps
// to the same id across restarts and devices.
func (s *Service) Login(username, password string) (*SessionUser, string, error) {
	if username != s.credential.username {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.credential.passwordHash, []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user := &SessionUser{
		ID:       DeriveUserID(username),
		Username: username,
		IsAdmin:  s.credential.isAdmin,
		Balance:  StartingBalance,
	}

	token, err := s.mintToken(user)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user logged in", zap.String("username", username), zap.String("user_id", user.ID))
	return user, token, nil
}

func (s *Service) mintToken(user *SessionUser) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"admin":    user.IsAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns the user id it carries
func (s *Service) ParseToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid session token")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("session token missing subject")
	}
	return sub, nil
}

// DeriveUserID maps a username to a stable v4-shaped UUID. The client keeps
// its session locally, so the id must be reproducible from the username
// alone; SHA-256 of the username fills the random bytes.
func DeriveUserID(username string) string {
	sum := sha256.Sum256([]byte(username))
	b := sum[:16]
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
