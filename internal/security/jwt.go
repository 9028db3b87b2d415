package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Роли операторов каталога
const (
	RoleViewer   = "catalog:read"
	RoleOperator = "catalog:write"
	RoleAdmin    = "admin"
)

// JWTManager выпускает и проверяет токены операторов (HS256)
type JWTManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
}

// Claims - данные токена. Subject - идентификатор оператора для журнала наценки.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func NewJWTManager(secret []byte, expiration time.Duration, issuer string) (*JWTManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTManager{
		secret:     secret,
		expiration: expiration,
		issuer:     issuer,
	}, nil
}

func (m *JWTManager) Generate(actorID string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   actorID,
		},
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HasRole сообщает, есть ли у токена роль. admin разрешает все,
// catalog:write включает catalog:read.
func (m *JWTManager) HasRole(claims *Claims, role string) bool {
	for _, r := range claims.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
		if role == RoleViewer && r == RoleOperator {
			return true
		}
	}
	return false
}
