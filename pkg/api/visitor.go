package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-funnel/pkg/models"
)

const (
	VisitorCookie = "tzp_visitor"
	visitorKey    = "visitor"
	visitorIssuer = "onboarding-funnel"
)

var errVisitorClaims = errors.New("visitor token missing claims")

type visitorClaims struct {
	jwt.RegisteredClaims
	AnonymousID string `json:"aid"`
}

// VisitorTokens signs and reads the cookie that stands in for the browser's
// local storage namespace.
type VisitorTokens struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewVisitorTokens(secret string, ttl time.Duration, secure bool) *VisitorTokens {
	return &VisitorTokens{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

func (t *VisitorTokens) sign(v models.Visitor) (string, error) {
	now := t.now()
	claims := visitorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    visitorIssuer,
			Subject:   v.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		AnonymousID: v.AnonymousID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *VisitorTokens) parse(token string) (models.Visitor, error) {
	var claims visitorClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(visitorIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return models.Visitor{}, fmt.Errorf("parse visitor token: %w", err)
	}
	if claims.Subject == "" || claims.AnonymousID == "" {
		return models.Visitor{}, errVisitorClaims
	}
	return models.Visitor{ID: claims.Subject, AnonymousID: claims.AnonymousID}, nil
}

// Issue writes the visitor cookie.
func (t *VisitorTokens) Issue(c *gin.Context, v models.Visitor) error {
	token, err := t.sign(v)
	if err != nil {
		return fmt.Errorf("sign visitor token: %w", err)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(VisitorCookie, token, int(t.ttl.Seconds()), "/", "", t.secure, true)
	return nil
}

// Middleware resolves the visitor from the cookie. A missing or invalid
// cookie starts a new visitor, like a browser with empty storage.
func (t *VisitorTokens) Middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var visitor models.Visitor
		token, err := c.Cookie(VisitorCookie)
		if err == nil {
			visitor, err = t.parse(token)
			if err != nil {
				logger.Debug("discarding visitor cookie", zap.Error(err))
			}
		}
		if err != nil {
			visitor = models.Visitor{ID: uuid.NewString(), AnonymousID: uuid.NewString()}
			if err := t.Issue(c, visitor); err != nil {
				logger.Error("error issuing visitor cookie", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
				return
			}
		}
		c.Set(visitorKey, visitor)
		c.Next()
	}
}

// CurrentVisitor returns the visitor resolved by the middleware.
func CurrentVisitor(c *gin.Context) models.Visitor {
	v, _ := c.Get(visitorKey)
	visitor, _ := v.(models.Visitor)
	return visitor
}
