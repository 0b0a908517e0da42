package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/triarb/triarb-api/internal/wallet"
	"github.com/triarb/triarb-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrDuplicateAPIKey    = errors.New("API key already registered")
)

// Credential is an API key pair registered for one client.
type Credential struct {
	gorm.Model `json:"-"`
	APIKey     string    `gorm:"uniqueIndex" json:"api_key"`
	APISecret  string    `json:"-"`
	ClientID   string    `gorm:"uniqueIndex" json:"client_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credentials is the request body for token generation.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	Permissions []string `json:"permissions"`
}

// Service handles client registration, credential validation and token
// issuance. Registering a client also provisions their wallet, so every
// authenticated client has a ledger from the first request.
type Service struct {
	db        *gorm.DB
	jwtSecret []byte
	wallets   *wallet.Service
}

func NewService(db *gorm.DB, jwtSecret string, wallets *wallet.Service) *Service {
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		wallets:   wallets,
	}
}

// Register stores a new credential pair and provisions the client's wallet.
func (s *Service) Register(creds Credentials) (*Credential, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrInvalidCredentials
	}

	var existing Credential
	err := s.db.Where("api_key = ?", creds.APIKey).First(&existing).Error
	if err == nil {
		return nil, ErrDuplicateAPIKey
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cred := &Credential{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		ClientID:  "CLI_" + uuid.New().String(),
	}
	if err := s.db.Create(cred).Error; err != nil {
		return nil, err
	}

	if err := s.wallets.Provision(cred.ClientID); err != nil {
		log.Error().Err(err).
			Str("client_id", cred.ClientID).
			Msg("failed to provision wallet for new client")
		return nil, err
	}

	log.Info().
		Str("service", "auth").
		Str("client_id", cred.ClientID).
		Msg("client registered")
	return cred, nil
}

// GenerateToken generates a JWT token for valid API credentials
// The token includes client ID and permissions with 24-hour expiration
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	cred, err := s.validateCredentials(creds)
	if err != nil {
		return nil, err
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		ClientID:    cred.ClientID,
		Permissions: []string{"scan", "trade"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (s *Service) validateCredentials(creds Credentials) (*Credential, error) {
	var cred Credential
	if err := s.db.Where("api_key = ?", creds.APIKey).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if cred.APISecret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}
	return &cred, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// RegisterHandler handles POST requests that register new API credentials.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		cred, err := h.service.Register(creds)
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrDuplicateAPIKey):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, cred, err)
		}
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain API credentials
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// GetClientID extracts the client ID from a JWT token
// Returns empty string if client ID is not found or invalid
func GetClientID(claims interface{}) string {
	if jwtClaims, ok := claims.(jwt.MapClaims); ok {
		if clientID, ok := jwtClaims["client_id"].(string); ok {
			return clientID
		}
	}
	return ""
}
