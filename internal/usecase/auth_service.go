package usecase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront-backend/internal/domain"
)

// AuthService signs and checks the bearer tokens issued to shoppers and
// merchants. Accounts live elsewhere; only the claims matter here.
type AuthService struct {
	JWTSecret string
	TTL       time.Duration
}

func (s *AuthService) Issue(userID string, role domain.Role) (string, error) {
	if userID == "" {
		return "", ErrBadRequest("user id is required")
	}
	if role == "" {
		role = domain.RoleCustomer
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.JWTSecret))
}

func (s *AuthService) Verify(token string) (domain.Principal, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Principal{}, err
	}
	if !parsed.Valid {
		return domain.Principal{}, ErrForbidden("invalid token")
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Principal{}, ErrNotFound("claims")
	}
	uid, _ := m["user_id"].(string)
	if uid == "" {
		return domain.Principal{}, ErrForbidden("token has no user")
	}
	role, _ := m["role"].(string)
	if role == "" {
		role = string(domain.RoleCustomer)
	}
	return domain.Principal{UserID: uid, Role: domain.Role(role)}, nil
}
