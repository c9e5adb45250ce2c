package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service performs the capability check the caller's environment owes the
// core: every request carries either a signed token or an API key, and
// the resolved identity feeds the engine's authorization decisions.
type Service struct {
	db  *gorm.DB
	cfg *configs.Config
}

func NewService(db *gorm.DB, cfg *configs.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

type Claims struct {
	UserID uint64 `json:"user_id"`
	Admin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Admin:  user.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "secure-video-access",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ValidateAPIKey checks a "<user_id>:<secret>" credential against the
// stored bcrypt hash.
func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	idPart, secret, found := strings.Cut(apiKey, ":")
	if !found {
		return nil, errors.New("malformed API key")
	}
	userID, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return nil, errors.New("malformed API key")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, errors.New("invalid API key")
	}
	if user.APIKey == "" {
		return nil, errors.New("invalid API key")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.APIKey), []byte(secret)) != nil {
		return nil, errors.New("invalid API key")
	}
	return &user, nil
}

func (s *Service) HashAPIKey(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// NormalizeIP collapses IPv6 loopback and mapped-IPv4 forms so stored
// addresses are consistent.
func NormalizeIP(ip string) string {
	switch {
	case ip == "::1":
		return "127.0.0.1"
	case strings.HasPrefix(ip, "::ffff:"):
		return ip[7:]
	}
	return ip
}
