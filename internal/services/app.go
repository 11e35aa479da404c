package services

import (
	"context"
	"errors"

	"au-panel/internal/cache"
	"au-panel/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// AppService drives the application lifecycle: staged deployment of new
// zones, cache-backed reads and quarantined removal. Filesystem-heavy
// operations run under a semaphore sized from the worker config.
type AppService struct {
	db      *models.Database
	cache   *cache.AppCache
	ports   *cache.PortCache
	staging *StagingService
	audit   *AuditSink
	sem     *semaphore.Weighted
	log     *zap.Logger
}

func NewAppService(db *models.Database, appCache *cache.AppCache, ports *cache.PortCache,
	staging *StagingService, audit *AuditSink, workers int64, log *zap.Logger) *AppService {
	return &AppService{
		db:      db,
		cache:   appCache,
		ports:   ports,
		staging: staging,
		audit:   audit,
		sem:     semaphore.NewWeighted(workers),
		log:     log,
	}
}

// AppData is the write shape of an application plus the first unit its zone
// starts with.
type AppData struct {
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	RestPort int       `json:"rest_port"`
	WSPort   int       `json:"ws_port"`
	ProfPort int       `json:"prof_port"`
	ZID      string    `json:"zid"`
	Key      string    `json:"key"`
	Desc     string    `json:"desc"`
	Enable   int       `json:"enable"`
	CID      uint      `json:"cid"`
	Version  string    `json:"version"`
	Unit     UnitEntry `json:"appunit"`
}

// List returns the cached applications visible to the caller.
func (s *AppService) List(caller models.Identity) []models.AppRecord {
	return s.cache.ListForCaller(caller)
}

// Get returns one cached application visible to the caller.
func (s *AppService) Get(caller models.Identity, aid uint) (models.AppRecord, error) {
	row, ok := s.cache.GetByID(aid, caller)
	if !ok {
		return models.AppRecord{}, ErrAppNotFound
	}
	return row, nil
}

// Ports returns the current port high-water marks.
func (s *AppService) Ports() cache.Ports {
	return s.ports.Get()
}

func (s *AppService) gate(caller models.Identity, cid uint) error {
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

func (s *AppService) companyName(cid uint) (string, error) {
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

// Create validates and stages the uploaded bundle, scaffolds the zone on
// disk, then records the app and its first unit in one transaction. Nothing
// is written anywhere before the archive passes validation.
func (s *AppService) Create(ctx context.Context, caller models.Identity, data AppData, bundleName string, archive []byte) (*models.App, error) {
	if err := s.gate(caller, data.CID); err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	cname, err := s.companyName(data.CID)
	if err != nil {
		return nil, err
	}

	if err := s.staging.StageArchive(archive, bundleName); err != nil {
		s.audit.Record(caller.Name, caller.Role, data.Name, "Add Application", err)
		return nil, err
	}

	unit := data.Unit
	base := BundleBase(bundleName)
	if unit.UName == "" {
		unit.UName = base
	}
	if unit.Path == "" {
		unit.Path = "zappunits/"
	}
	if unit.Name == "" {
		unit.Name = bundleName
	}
	if unit.PoolSize == 0 {
		unit.PoolSize = 1
	}

	version := data.Version
	if version == "" {
		version = "1.0.0"
	}
	desc := NewDescriptor(data.Name, data.ZID, version, unit)

	if err := s.staging.ScaffoldZone(cname, data.ZID, data.Name, data.RestPort, data.WSPort, data.ProfPort, desc); err != nil {
		s.staging.CleanupTemp(bundleName)
		s.audit.Record(caller.Name, caller.Role, data.Name, "Add Application", err)
		return nil, err
	}
	if err := s.staging.InstallBundle(cname, data.ZID, unit.Path, bundleName); err != nil {
		s.staging.CleanupTemp(bundleName)
		s.audit.Record(caller.Name, caller.Role, data.Name, "Add Application", err)
		return nil, err
	}
	s.staging.CleanupTemp(bundleName)

	key := data.Key
	if key == "" {
		key = uuid.NewString()
	}

	app := &models.App{
		Name:     data.Name,
		IP:       data.IP,
		RestPort: data.RestPort,
		WSPort:   data.WSPort,
		ProfPort: data.ProfPort,
		ZID:      data.ZID,
		Key:      key,
		Desc:     data.Desc,
		Enable:   data.Enable,
		CID:      data.CID,
	}
	err = s.db.Tx(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return err
		}
		return tx.Create(&models.AppUnit{
			ZID:      data.ZID,
			CID:      data.CID,
			UName:    unit.UName,
			IfName:   unit.IfName,
			Path:     unit.Path,
			Enable:   unit.Enable,
			PoolSize: unit.PoolSize,
			Name:     unit.Name,
		}).Error
	})
	s.audit.Record(caller.Name, caller.Role, data.Name, "Add Application", err)
	if err != nil {
		return nil, err
	}

	if err := s.RefreshCache(); err != nil {
		s.log.Error("failed to refresh app cache after create", zap.Error(err))
	}
	s.ports.Update(data.RestPort, data.WSPort, data.ProfPort)

	app.Key = ""
	return app, nil
}

// Update rewrites the database row of an application. The zone on disk is
// untouched; unit changes go through the app unit operations.
func (s *AppService) Update(caller models.Identity, aid uint, data AppData) (*models.App, error) {
	if err := s.gate(caller, data.CID); err != nil {
		return nil, err
	}

	var app models.App
	err := s.db.Run(func(db *gorm.DB) error {
		return db.First(&app, aid).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	if caller.Role == models.RoleAdmin {
		if own, ok := caller.CompanyID(); !ok || app.CID != own {
			return nil, ErrForbidden
		}
	}

	app.Name = data.Name
	app.IP = data.IP
	app.RestPort = data.RestPort
	app.WSPort = data.WSPort
	app.ProfPort = data.ProfPort
	app.Desc = data.Desc
	app.Enable = data.Enable
	if data.Key != "" {
		app.Key = data.Key
	}

	err = s.db.Run(func(db *gorm.DB) error {
		return db.Save(&app).Error
	})
	s.audit.Record(caller.Name, caller.Role, data.Name, "Modify Application", err)
	if err != nil {
		return nil, err
	}

	if err := s.RefreshCache(); err != nil {
		s.log.Error("failed to refresh app cache after update", zap.Error(err))
	}

	app.Key = ""
	return &app, nil
}

// Delete removes an application: the zone directory is quarantined under
// Delete/, then the app row and its units are removed.
func (s *AppService) Delete(ctx context.Context, caller models.Identity, cid, aid uint) error {
	if err := s.gate(caller, cid); err != nil {
		return err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	row, ok := s.cache.DeleteByID(aid, cid, caller.Role)
	if !ok {
		return ErrAppNotFound
	}

	if err := s.staging.QuarantineZone(row.CName, row.ZID); err != nil {
		s.log.Error("failed to quarantine zone",
			zap.String("company", row.CName), zap.String("zid", row.ZID), zap.Error(err))
	}

	err := s.db.Tx(func(tx *gorm.DB) error {
		if err := tx.Where("cid = ? AND zid = ?", row.CID, row.ZID).Delete(&models.AppUnit{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.App{}, aid).Error
	})
	s.audit.Record(caller.Name, caller.Role, row.Name, "Delete Application", err)
	if err != nil {
		return err
	}

	if err := s.RefreshCache(); err != nil {
		s.log.Error("failed to refresh app cache after delete", zap.Error(err))
	}
	return nil
}

// RefreshCache rebuilds the app cache from a fresh table read.
func (s *AppService) RefreshCache() error {
	var rows []models.AppRecord
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Table("apps").
			Select("apps.*, companies.name AS cname").
			Joins("LEFT JOIN companies ON companies.cid = apps.cid").
			Order("apps.aid").
			Scan(&rows).Error
	})
	if err != nil {
		return err
	}
	s.cache.Rebuild(rows)
	return nil
}

// SeedPorts loads the port high-water marks from the apps table.
func (s *AppService) SeedPorts() error {
	var ports cache.Ports
	err := s.db.Run(func(db *gorm.DB) error {
		return db.Table("apps").
			Select("COALESCE(MAX(rest_port), 0) AS max_rest_port, COALESCE(MAX(ws_port), 0) AS max_ws_port, COALESCE(MAX(prof_port), 0) AS max_prof_port").
			Scan(&ports).Error
	})
	if err != nil {
		return err
	}
	s.ports.Seed(ports)
	return nil
}
