package services

import (
	"errors"

	"au-panel/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CompanyService struct {
	db      *models.Database
	staging *StagingService
	audit   *AuditSink
	log     *zap.Logger
}

func NewCompanyService(db *models.Database, staging *StagingService, audit *AuditSink, log *zap.Logger) *CompanyService {
	return &CompanyService{db: db, staging: staging, audit: audit, log: log}
}

// ListCompanies returns every company for super admins and only the caller's
// own for everyone else.
func (s *CompanyService) ListCompanies(caller models.Identity) ([]models.Company, error) {
	var companies []models.Company
	err := s.db.Run(func(db *gorm.DB) error {
		q := db.Order("cid")
		if caller.Role != models.RoleSuperAdmin {
			cid, ok := caller.CompanyID()
			if !ok {
				companies = []models.Company{}
				return nil
			}
			q = q.Where("cid = ?", cid)
		}
		return q.Find(&companies).Error
	})
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// scoped rejects company-bound callers reaching outside their own company.
// Super admins and global identities pass.
func scoped(caller models.Identity, cid uint) error {
	if caller.Role == models.RoleSuperAdmin || caller.Global() {
		return nil
	}
	own, ok := caller.CompanyID()
	if !ok || own != cid {
		return ErrForbidden
	}
	return nil
}

func (s *CompanyService) GetCompany(caller models.Identity, cid uint) (*models.Company, error) {
	if !caller.Role.CanManage() {
		return nil, ErrForbidden
	}
	if err := scoped(caller, cid); err != nil {
		return nil, err
	}
	var company models.Company
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&company, cid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return &company, nil
}

// CreateCompany adds a company. Only super admins create companies; an
// admin is bound to one that already exists.
func (s *CompanyService) CreateCompany(caller models.Identity, name string, enable int) (*models.Company, error) {
	if caller.Role != models.RoleSuperAdmin {
		return nil, ErrForbidden
	}

	company := &models.Company{Name: name, Enable: enable}
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Create(company).Error
	})
	s.audit.Record(caller.Name, caller.Role, name, "Add Company", err)
	if err != nil {
		return nil, err
	}
	return company, nil
}

func (s *CompanyService) UpdateCompany(caller models.Identity, cid uint, name string, enable int) (*models.Company, error) {
	if !caller.Role.CanManage() {
		return nil, ErrForbidden
	}
	if err := scoped(caller, cid); err != nil {
		return nil, err
	}

	var company models.Company
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&company, cid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}

	company.Name = name
	company.Enable = enable
	err = s.db.Run(func(db *gorm.DB) error {
		return db.Save(&company).Error
	})
	s.audit.Record(caller.Name, caller.Role, name, "Modify Company", err)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// DeleteCompany quarantines the company's zone tree and removes its row.
// Apps and app units of the company are removed in the same transaction.
func (s *CompanyService) DeleteCompany(caller models.Identity, cid uint) error {
	if caller.Role != models.RoleSuperAdmin {
		return ErrForbidden
	}

	var company models.Company
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&company, cid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCompanyNotFound
		}
		return err
	}

	if err := s.staging.QuarantineCompany(company.Name); err != nil {
		s.log.Error("failed to quarantine company tree",
			zap.String("company", company.Name), zap.Error(err))
	}

	err = s.db.Tx(func(tx *gorm.DB) error {
		if err := tx.Where("cid = ?", cid).Delete(&models.AppUnit{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cid = ?", cid).Delete(&models.App{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Company{}, cid).Error
	})
	s.audit.Record(caller.Name, caller.Role, company.Name, "Delete Company", err)
	return err
}
