package middleware

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Meltveit/ExcelTemplateMarket/models"
)

// UserKey is the gin context key holding the authenticated admin user.
const UserKey = "user"

// AdminAuth gates the admin surface. It accepts either HTTP Basic credentials
// checked against the users table with bcrypt, or a Bearer JWT minted by the
// admin login endpoint. Either way the resolved user must be an admin.
func AdminAuth(db *sql.DB, jwtSecret []byte, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		var user models.User
		var err error

		switch {
		case strings.HasPrefix(authHeader, "Basic "):
			user, err = basicAuth(c, db, strings.TrimPrefix(authHeader, "Basic "))
		case strings.HasPrefix(authHeader, "Bearer "):
			user, err = bearerAuth(c, db, strings.TrimPrefix(authHeader, "Bearer "), jwtSecret)
		default:
			err = errors.New("unsupported authorization scheme")
		}

		if err != nil {
			logger.Warn("Admin auth rejected",
				zap.String("trace_id", GetTraceID(c.Request.Context())),
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

func basicAuth(c *gin.Context, db *sql.DB, encoded string) (models.User, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.User{}, errors.New("malformed basic credentials")
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return models.User{}, errors.New("malformed basic credentials")
	}

	user, err := lookupUser(c, db, username)
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}
	return user, nil
}

func bearerAuth(c *gin.Context, db *sql.DB, tokenString string, secret []byte) (models.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return models.User{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.User{}, errors.New("invalid token claims")
	}

	username, _ := claims["username"].(string)
	if username == "" {
		return models.User{}, errors.New("token missing username claim")
	}

	return lookupUser(c, db, username)
}

func lookupUser(c *gin.Context, db *sql.DB, username string) (models.User, error) {
	var user models.User
	err := db.QueryRowContext(c.Request.Context(),
		"SELECT id, username, password_hash, is_admin FROM users WHERE username = $1",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}
	return user, nil
}

// GenerateAdminToken mints a 24h JWT for an authenticated admin.
func GenerateAdminToken(secret []byte, user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(secret)
}
