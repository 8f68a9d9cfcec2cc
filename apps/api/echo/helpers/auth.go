package helpers

import (
	"context"
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/elimulabs/elimu/core/user"
)

var (
	appName                string
	secretKey              []byte
	expirationDelta        time.Duration
	refreshExpirationDelta time.Duration

	// AppJWTConfig is the JWT auth middleware config; populated by ConfigureAuth.
	AppJWTConfig = middleware.JWTConfig{
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	contextUserKey = "user"
)

// ConfigureAuth wires the JWT settings and returns the auth middleware.
func ConfigureAuth(name string, key []byte, expDelta, refreshExpDelta time.Duration) echo.MiddlewareFunc {
	appName = name
	secretKey = key
	expirationDelta = expDelta
	refreshExpirationDelta = refreshExpDelta
	AppJWTConfig.SigningKey = secretKey
	return middleware.JWTWithConfig(AppJWTConfig)
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OriginalIssuedAt int64    `json:"oriat,omitempty"`
	IsLearner        bool     `json:"is_learner,omitempty"`
	IsInstructor     bool     `json:"is_instructor,omitempty"`
	IsAdmin          bool     `json:"is_admin,omitempty"`
	Roles            []string `json:"roles,omitempty"`
}

func GetUserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    appName,
			Subject:   usr.ID,
			Audience:  "Elimu",
			ExpiresAt: now.Add(expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OriginalIssuedAt: oriat,
		IsLearner:        usr.IsLearner(),
		IsInstructor:     usr.IsInstructor(),
		IsAdmin:          usr.IsAdmin(),
		Roles:            usr.Roles,
	}
	return claims
}

func Authenticate(ctx context.Context, uname, pwd string, svc user.Service) (user.User, *Claims, error) {
	if usr, err := svc.GetByUsernameOrEmail(ctx, uname); err == nil {
		if err = usr.CheckPassword(pwd); err == nil {
			if !usr.IsActive {
				return user.User{}, nil, errAccountDeactivated
			}
			return usr, GetUserClaims(usr), nil
		}
	}
	return user.User{}, nil, errAuthenticationFailed
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(AppJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(AppJWTConfig.SigningKey)
	if err != nil {
		return "", errTokenSigningFailed
	}
	return ss, nil
}

func GetContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(AppJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func GetContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = GetContextClaims(ctx)
		if err != nil {
			return user.User{}, err
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, err
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := GetContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}

func RefreshToken(ctx echo.Context, svc user.Service) (string, error) {
	claims, err := GetContextClaims(ctx)
	if err != nil {
		return "", err
	}

	usr, err := GetContextUser(ctx, svc, claims)
	if err != nil {
		return "", err
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OriginalIssuedAt, 0).Add(refreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetUserClaims(usr, claims.OriginalIssuedAt)
	return GenerateToken(newClaims)
}
