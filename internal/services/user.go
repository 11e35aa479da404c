package services

import (
	"errors"

	"au-panel/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserService struct {
	db    *models.Database
	auth  *AuthService
	audit *AuditSink
	log   *zap.Logger
}

func NewUserService(db *models.Database, auth *AuthService, audit *AuditSink, log *zap.Logger) *UserService {
	return &UserService{db: db, auth: auth, audit: audit, log: log}
}

type UserData struct {
	Name     string
	Email    string
	Password string
	Enable   int
	CID      string
	UTID     models.Role
}

const userSelect = "users.uid, users.utid, users.cid, users.name, users.email, users.enable, companies.name AS cname"

// ListUsers returns the users visible to the caller, never including hashes.
func (s *UserService) ListUsers(caller models.Identity) ([]models.UserRecord, error) {
	var users []models.UserRecord
	err := s.db.Run(func(db *gorm.DB) error {
		q := db.Table("users").
			Select(userSelect).
			Joins("LEFT JOIN companies ON companies.cid = users.cid")
		switch caller.Role {
		case models.RoleSuperAdmin:
		case models.RoleAdmin:
			q = q.Where("users.cid = ?", caller.CID)
		default:
			q = q.Where("users.cid = ? AND users.enable = 1", caller.CID)
		}
		return q.Order("users.uid").Scan(&users).Error
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns one user if the caller may see them.
func (s *UserService) GetUser(caller models.Identity, uid uint) (*models.UserRecord, error) {
	var user models.UserRecord
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Table("users").
			Select(userSelect).
			Joins("LEFT JOIN companies ON companies.cid = users.cid").
			Where("users.uid = ?", uid).
			Take(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if caller.Role != models.RoleSuperAdmin && user.CID != caller.CID {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// CreateUser adds a user. Admins may only create inside their own company,
// checked before any query runs.
func (s *UserService) CreateUser(caller models.Identity, data UserData) (*models.User, error) {
	if !caller.Role.CanManage() {
		return nil, ErrForbidden
	}
	if caller.Role == models.RoleAdmin && data.CID != caller.CID {
		return nil, ErrForbidden
	}

	var existing models.User
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Where("name = ? OR email = ?", data.Name, data.Email).First(&existing).Error
	})
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := s.auth.HashPassword(data.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:           data.Name,
		Email:          data.Email,
		HashedPassword: hashed,
		Enable:         data.Enable,
		CID:            data.CID,
		UTID:           data.UTID,
	}
	err = s.db.Run(func(db *gorm.DB) error {
		return db.Create(user).Error
	})
	s.audit.Record(caller.Name, caller.Role, data.Name, "Add User", err)
	if err != nil {
		return nil, err
	}

	user.HashedPassword = ""
	return user, nil
}

// UpdateUser rewrites a user row. Admins may only touch their own company.
func (s *UserService) UpdateUser(caller models.Identity, uid uint, data UserData) (*models.User, error) {
	if !caller.Role.CanManage() {
		return nil, ErrForbidden
	}
	if caller.Role == models.RoleAdmin && data.CID != caller.CID {
		return nil, ErrForbidden
	}

	var user models.User
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&user, uid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if caller.Role == models.RoleAdmin && user.CID != caller.CID {
		return nil, ErrForbidden
	}

	user.Name = data.Name
	user.Email = data.Email
	user.Enable = data.Enable
	user.CID = data.CID
	user.UTID = data.UTID
	if data.Password != "" {
		hashed, err := s.auth.HashPassword(data.Password)
		if err != nil {
			return nil, err
		}
		user.HashedPassword = hashed
	}

	err = s.db.Run(func(db *gorm.DB) error {
		return db.Save(&user).Error
	})
	s.audit.Record(caller.Name, caller.Role, data.Name, "Modify User", err)
	if err != nil {
		return nil, err
	}

	user.HashedPassword = ""
	return &user, nil
}

// DeleteUser removes a user. Super admins hard delete any non super admin;
// admins soft disable inside their own company. Deleting yourself is refused
// before anything else is checked.
func (s *UserService) DeleteUser(caller models.Identity, uid uint) error {
	if uid == caller.UID {
		return ErrSelfDelete
	}

	switch caller.Role {
	case models.RoleSuperAdmin:
		var res *gorm.DB
		err := s.db.Run(func(db *gorm.DB) error {
			res = db.Where("uid = ? AND utid > ?", uid, int(models.RoleSuperAdmin)).Delete(&models.User{})
			return res.Error
		})
		s.audit.Record(caller.Name, caller.Role, "", "Delete User", err)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil

	case models.RoleAdmin:
		var user models.User
		err := s.db.Run(func(db *gorm.DB) error {
			return db.First(&user, uid).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.CID != caller.CID || user.UTID == models.RoleSuperAdmin {
			s.audit.Record(caller.Name, caller.Role, user.Name, "Delete User", ErrForbidden)
			return ErrForbidden
		}
		err = s.db.Run(func(db *gorm.DB) error {
			return db.Model(&models.User{}).Where("uid = ?", uid).Update("enable", 0).Error
		})
		s.audit.Record(caller.Name, caller.Role, user.Name, "Delete User", err)
		return err

	default:
		s.audit.Record(caller.Name, caller.Role, "", "Delete User", ErrForbidden)
		return ErrForbidden
	}
}
