package services

import (
	"context"
	"errors"

	"au-panel/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// AppUnitService manages the executable bundles inside a zone. Disk changes
// always happen before the matching database write; a database failure after
// a successful disk change is logged as a descriptor drift so an operator
// can reconcile.
type AppUnitService struct {
	db      *models.Database
	staging *StagingService
	audit   *AuditSink
	sem     *semaphore.Weighted
	log     *zap.Logger
}

func NewAppUnitService(db *models.Database, staging *StagingService, audit *AuditSink, workers int64, log *zap.Logger) *AppUnitService {
	return &AppUnitService{
		db:      db,
		staging: staging,
		audit:   audit,
		sem:     semaphore.NewWeighted(workers),
		log:     log,
	}
}

// AppUnitData is the write shape of one unit.
type AppUnitData struct {
	UName    string `json:"uname"`
	IfName   string `json:"ifname"`
	Path     string `json:"path"`
	Enable   int    `json:"enable"`
	PoolSize int    `json:"pool_size"`
	Name     string `json:"name"`
}

func (s *AppUnitService) gate(caller models.Identity, cid uint) error {
	if !caller.Role.CanManage() {
		return ErrForbidden
	}
	if caller.Role == models.RoleAdmin {
		own, ok := caller.CompanyID()
		if !ok || own != cid {
			return ErrForbidden
		}
	}
	return nil
}

func (s *AppUnitService) companyName(cid uint) (string, error) {
	var company models.Company
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&company, cid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCompanyNotFound
		}
		return "", err
	}
	return company.Name, nil
}

// List returns every unit of one zone.
func (s *AppUnitService) List(caller models.Identity, cid uint, zid string) ([]models.AppUnitRecord, error) {
	if caller.Role != models.RoleSuperAdmin {
		if own, ok := caller.CompanyID(); !ok || own != cid {
			return nil, ErrForbidden
		}
	}

	var units []models.AppUnitRecord
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Table("app_units").
			Select("app_units.*, companies.name AS cname").
			Joins("LEFT JOIN companies ON companies.cid = app_units.cid").
			Where("app_units.cid = ? AND app_units.zid = ?", cid, zid).
			Order("app_units.id").
			Scan(&units).Error
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// Get returns one unit by id within a company.
func (s *AppUnitService) Get(caller models.Identity, cid, id uint) (*models.AppUnitRecord, error) {
	if caller.Role != models.RoleSuperAdmin {
		if own, ok := caller.CompanyID(); !ok || own != cid {
			return nil, ErrForbidden
		}
	}

	var unit models.AppUnitRecord
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Table("app_units").
			Select("app_units.*, companies.name AS cname").
			Joins("LEFT JOIN companies ON companies.cid = app_units.cid").
			Where("app_units.id = ? AND app_units.cid = ?", id, cid).
			Take(&unit).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppUnitNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// Add deploys a new unit into an existing zone: the bundle is validated and
// staged, the zone descriptor gains the entry, the payload is merged in and
// only then is the row inserted.
func (s *AppUnitService) Add(ctx context.Context, caller models.Identity, cid uint, zid string, data AppUnitData, bundleName string, archive []byte) (*models.AppUnit, error) {
	if err := s.gate(caller, cid); err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	cname, err := s.companyName(cid)
	if err != nil {
		return nil, err
	}

	if err := s.staging.StageArchive(archive, bundleName); err != nil {
		s.audit.Record(caller.Name, caller.Role, data.UName, "Add App Unit", err)
		return nil, err
	}

	base := BundleBase(bundleName)
	if data.UName == "" {
		data.UName = base
	}
	if data.Path == "" {
		data.Path = "zappunits/"
	}
	if data.Name == "" {
		data.Name = bundleName
	}
	if data.PoolSize == 0 {
		data.PoolSize = 1
	}

	entry := UnitEntry{
		UName:    data.UName,
		Enable:   data.Enable,
		PoolSize: data.PoolSize,
		IfName:   data.IfName,
		Path:     data.Path,
		Name:     data.Name,
	}
	if err := s.staging.AppendUnit(cname, zid, entry); err != nil {
		s.staging.CleanupTemp(bundleName)
		s.audit.Record(caller.Name, caller.Role, data.UName, "Add App Unit", err)
		return nil, err
	}
	if err := s.staging.MergeBundle(cname, zid, data.Path, bundleName); err != nil {
		s.staging.CleanupTemp(bundleName)
		s.audit.Record(caller.Name, caller.Role, data.UName, "Add App Unit", err)
		return nil, err
	}
	s.staging.CleanupTemp(bundleName)

	unit := &models.AppUnit{
		ZID:      zid,
		CID:      cid,
		UName:    data.UName,
		IfName:   data.IfName,
		Path:     data.Path,
		Enable:   data.Enable,
		PoolSize: data.PoolSize,
		Name:     data.Name,
	}
	err = s.db.Run(func(db *gorm.DB) error {
		return db.Create(unit).Error
	})
	s.audit.Record(caller.Name, caller.Role, data.UName, "Add App Unit", err)
	if err != nil {
		s.log.Error("descriptor out of sync: unit deployed on disk but row insert failed",
			zap.String("company", cname), zap.String("zid", zid),
			zap.String("uname", data.UName), zap.Error(err))
		return nil, err
	}
	return unit, nil
}

// Update modifies a unit. When a replacement archive is supplied the old
// install is quarantined under Edit/ and the new payload merged in; without
// one only the descriptor and row change. An empty ifname narrows the row
// update to uname, pool size and enable.
func (s *AppUnitService) Update(ctx context.Context, caller models.Identity, cid, id uint, data AppUnitData, bundleName string, archive []byte) (*models.AppUnit, error) {
	if err := s.gate(caller, cid); err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	var existing models.AppUnit
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Where("id = ? AND cid = ?", id, cid).Take(&existing).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppUnitNotFound
		}
		return nil, err
	}

	cname, err := s.companyName(cid)
	if err != nil {
		return nil, err
	}

	entry := UnitEntry{
		UName:    data.UName,
		Enable:   data.Enable,
		PoolSize: data.PoolSize,
		IfName:   data.IfName,
		Path:     data.Path,
		Name:     data.Name,
	}

	if len(archive) > 0 {
		if err := s.staging.StageArchive(archive, bundleName); err != nil {
			s.audit.Record(caller.Name, caller.Role, existing.UName, "Modify App Unit", err)
			return nil, err
		}
		if err := s.staging.PatchUnit(cname, existing.ZID, existing.UName, entry); err != nil {
			s.staging.CleanupTemp(bundleName)
			s.audit.Record(caller.Name, caller.Role, existing.UName, "Modify App Unit", err)
			return nil, err
		}
		if err := s.staging.QuarantineUnitForEdit(cname, existing.ZID, PathTop(existing.Path), BundleBase(existing.Name)); err != nil {
			s.log.Error("failed to quarantine previous unit install",
				zap.String("company", cname), zap.String("zid", existing.ZID), zap.Error(err))
		}
		if err := s.staging.MergeBundle(cname, existing.ZID, existing.Path, bundleName); err != nil {
			s.staging.CleanupTemp(bundleName)
			s.audit.Record(caller.Name, caller.Role, existing.UName, "Modify App Unit", err)
			return nil, err
		}
		s.staging.CleanupTemp(bundleName)
	} else {
		if err := s.staging.PatchUnit(cname, existing.ZID, existing.UName, entry); err != nil {
			s.audit.Record(caller.Name, caller.Role, existing.UName, "Modify App Unit", err)
			return nil, err
		}
	}

	err = s.db.Run(func(db *gorm.DB) error {
		if len(archive) == 0 && data.IfName == "" {
			return db.Model(&models.AppUnit{}).
				Where("id = ? AND cid = ?", id, cid).
				Updates(map[string]any{
					"uname":     data.UName,
					"pool_size": data.PoolSize,
					"enable":    data.Enable,
				}).Error
		}
		return db.Model(&models.AppUnit{}).
			Where("id = ? AND cid = ?", id, cid).
			Updates(map[string]any{
				"uname":     data.UName,
				"ifname":    data.IfName,
				"path":      data.Path,
				"enable":    data.Enable,
				"pool_size": data.PoolSize,
				"name":      data.Name,
			}).Error
	})
	s.audit.Record(caller.Name, caller.Role, existing.UName, "Modify App Unit", err)
	if err != nil {
		s.log.Error("descriptor out of sync: descriptor patched but row update failed",
			zap.String("company", cname), zap.String("zid", existing.ZID),
			zap.String("uname", existing.UName), zap.Error(err))
		return nil, err
	}

	var updated models.AppUnit
	if err := s.db.Run(func(db *gorm.DB) error {
		return db.Take(&updated, id).Error
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a unit from its zone descriptor, quarantines its install
// directory and deletes the row.
func (s *AppUnitService) Delete(ctx context.Context, caller models.Identity, cid, id uint) error {
	if err := s.gate(caller, cid); err != nil {
		return err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	var unit models.AppUnit
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Where("id = ? AND cid = ?", id, cid).Take(&unit).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAppUnitNotFound
		}
		return err
	}

	cname, err := s.companyName(cid)
	if err != nil {
		return err
	}

	if err := s.staging.RemoveUnit(cname, unit.ZID, unit.UName); err != nil {
		s.audit.Record(caller.Name, caller.Role, unit.UName, "Delete App Unit", err)
		return err
	}
	if err := s.staging.QuarantineUnit(cname, unit.ZID, PathTop(unit.Path), BundleBase(unit.Name)); err != nil {
		s.log.Error("failed to quarantine unit install",
			zap.String("company", cname), zap.String("zid", unit.ZID), zap.Error(err))
	}

	err = s.db.Run(func(db *gorm.DB) error {
		return db.Where("id = ? AND cid = ?", id, cid).Delete(&models.AppUnit{}).Error
	})
	s.audit.Record(caller.Name, caller.Role, unit.UName, "Delete App Unit", err)
	if err != nil {
		s.log.Error("descriptor out of sync: unit removed on disk but row delete failed",
			zap.String("company", cname), zap.String("zid", unit.ZID),
			zap.String("uname", unit.UName), zap.Error(err))
	}
	return err
}
