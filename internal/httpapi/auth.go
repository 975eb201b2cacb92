package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cafeops/backend/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
}

type UserStore interface {
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type cafeClaims struct {
	jwtlib.RegisteredClaims
	EmployeeID string   `json:"employee_id"`
	Roles      []string `json:"roles"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	account, err := a.userStore.GetUser(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !a.verify(ctx, account, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	roles := domain.RoleNames(account.Roles)
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account.Username, account.EmployeeID, roles, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		EmployeeID:  account.EmployeeID,
		Roles:       roles,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// verify checks the password. Accounts imported with a plain-text password
// are upgraded to bcrypt on their first successful login.
func (a *AuthManager) verify(ctx context.Context, account *domain.UserAccount, input string) bool {
	if isPasswordHash(account.Password) {
		return bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(input)) == nil
	}
	if account.Password == "" || subtle.ConstantTimeCompare([]byte(account.Password), []byte(input)) != 1 {
		return false
	}
	if hashed, err := hashPassword(input); err == nil {
		if err := a.userStore.UpdateUserPassword(ctx, account.Username, hashed); err != nil {
			log.Printf("[auth] WARN: failed to upgrade password hash for %s: %v", account.Username, err)
		}
	}
	return true
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &cafeClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}

	roles := make([]domain.Role, 0, len(claims.Roles))
	for _, name := range claims.Roles {
		if role, ok := domain.ParseRole(name); ok {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return domain.Actor{}, errors.New("token carries no known role")
	}
	return domain.Actor{Username: sub, EmployeeID: claims.EmployeeID, Roles: roles}, nil
}

func (a *AuthManager) sign(username string, employeeID string, roles []string, expiresAt time.Time) (string, error) {
	claims := cafeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "cafeops",
		},
		EmployeeID: employeeID,
		Roles:      roles,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
