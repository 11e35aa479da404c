package services

import (
	"errors"
	"fmt"

	"au-panel/internal/cache"
	"au-panel/internal/config"
	"au-panel/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	db       *models.Database
	sessions *cache.SessionCache
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthService(db *models.Database, sessions *cache.SessionCache, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{db: db, sessions: sessions, cfg: cfg, log: log}
}

// HashPassword hashes a password using bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Auth.BcryptCost)
	return string(bytes), err
}

// VerifyPassword verifies a password against a hash
func (s *AuthService) VerifyPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// Login validates credentials and mints a session token. Disabled users are
// rejected, as are users whose company is disabled; users bound to the "*"
// company skip the company check.
func (s *AuthService) Login(username, password string) (string, *models.User, error) {
	var user models.User
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Where("name = ? OR email = ?", username, username).First(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if user.Enable != 1 {
		return "", nil, ErrInvalidCredentials
	}

	if user.CID != models.GlobalCompany {
		var company models.Company
		err := s.db.Run(func(db *gorm.DB) error {
			return db.Where("cid = ?", user.CID).First(&company).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", nil, ErrInvalidCredentials
			}
			return "", nil, err
		}
		if company.Enable != 1 {
			s.log.Warn("login rejected for disabled company",
				zap.String("user", user.Name), zap.String("cid", user.CID))
			return "", nil, ErrInvalidCredentials
		}
	}

	if !s.VerifyPassword(user.HashedPassword, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.sessions.CreateToken(models.Identity{
		UID:   user.UID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.UTID,
		CID:   user.CID,
	})
	if err != nil {
		return "", nil, err
	}

	user.HashedPassword = ""
	return token, &user, nil
}

// Logout revokes a session token. It reports whether the token was live.
func (s *AuthService) Logout(token string) bool {
	return s.sessions.Revoke(token)
}

// CreateDefaultUser seeds the global super admin when the user table is empty.
func (s *AuthService) CreateDefaultUser() error {
	var count int64
	if err := s.db.Run(func(db *gorm.DB) error {
		return db.Model(&models.User{}).Count(&count).Error
	}); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := s.HashPassword(s.cfg.DefaultUser.Password)
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}

	user := &models.User{
		Name:           s.cfg.DefaultUser.Username,
		Email:          s.cfg.DefaultUser.Email,
		HashedPassword: hashed,
		Enable:         1,
		CID:            models.GlobalCompany,
		UTID:           models.RoleSuperAdmin,
	}
	if err := s.db.Run(func(db *gorm.DB) error {
		return db.Create(user).Error
	}); err != nil {
		return err
	}

	s.log.Info("default super admin created", zap.String("user", user.Name))
	return nil
}
