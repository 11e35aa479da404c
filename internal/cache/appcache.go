package cache

import (
	"sync"

	"au-panel/internal/models"

	"go.uber.org/zap"
)

// AppCache is the in-memory snapshot of the apps table grouped by company.
// It is rebuilt wholesale from a fresh table read after every mutation and
// at startup, so reads never see a half-applied change.
type AppCache struct {
	mu        sync.RWMutex
	byCompany map[uint][]models.AppRecord
	order     []uint
	log       *zap.Logger
}

func NewAppCache(log *zap.Logger) *AppCache {
	return &AppCache{
		byCompany: make(map[uint][]models.AppRecord),
		log:       log,
	}
}

// Rebuild clears the cache and regroups the given rows by company id,
// keeping arrival order.
func (c *AppCache) Rebuild(rows []models.AppRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byCompany = make(map[uint][]models.AppRecord)
	c.order = c.order[:0]

	for _, row := range rows {
		if _, ok := c.byCompany[row.CID]; !ok {
			c.order = append(c.order, row.CID)
		}
		c.byCompany[row.CID] = append(c.byCompany[row.CID], row)
	}

	c.log.Info("app cache rebuilt",
		zap.Int("apps", len(rows)),
		zap.Int("companies", len(c.byCompany)))
}

// ListForCaller returns the apps visible to the identity with the secret key
// stripped. Super admins see everything, admins their own company, regular
// users only the enabled apps of their own company.
func (c *AppCache) ListForCaller(identity models.Identity) []models.AppRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []models.AppRecord{}

	if identity.Role == models.RoleSuperAdmin {
		for _, cid := range c.order {
			for _, row := range c.byCompany[cid] {
				out = append(out, stripKey(row))
			}
		}
		return out
	}

	cid, ok := identity.CompanyID()
	if !ok {
		return out
	}
	for _, row := range c.byCompany[cid] {
		if identity.Role == models.RoleUser && row.Enable != 1 {
			continue
		}
		out = append(out, stripKey(row))
	}
	return out
}

// GetByID returns a single visible app with the secret key stripped.
func (c *AppCache) GetByID(aid uint, identity models.Identity) (models.AppRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if identity.Role == models.RoleSuperAdmin {
		for _, rows := range c.byCompany {
			for _, row := range rows {
				if row.AID == aid {
					return stripKey(row), true
				}
			}
		}
		return models.AppRecord{}, false
	}

	cid, ok := identity.CompanyID()
	if !ok {
		return models.AppRecord{}, false
	}
	for _, row := range c.byCompany[cid] {
		if row.AID != aid {
			continue
		}
		if identity.Role == models.RoleUser && row.Enable != 1 {
			continue
		}
		return stripKey(row), true
	}
	return models.AppRecord{}, false
}

// DeleteByID removes an app from the cache and returns the full row,
// including the secret key, so the caller can clean up its zone.
func (c *AppCache) DeleteByID(aid uint, cid uint, role models.Role) (models.AppRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if role == models.RoleSuperAdmin {
		for company, rows := range c.byCompany {
			for i, row := range rows {
				if row.AID == aid {
					c.byCompany[company] = append(rows[:i], rows[i+1:]...)
					return row, true
				}
			}
		}
		return models.AppRecord{}, false
	}

	rows := c.byCompany[cid]
	for i, row := range rows {
		if row.AID == aid {
			c.byCompany[cid] = append(rows[:i], rows[i+1:]...)
			return row, true
		}
	}
	return models.AppRecord{}, false
}

// SecretKey returns the monitoring key of an app. Global identities scan
// every company; everyone else is confined to their own.
func (c *AppCache) SecretKey(aid uint, identity models.Identity) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if identity.Global() {
		for _, rows := range c.byCompany {
			for _, row := range rows {
				if row.AID == aid && row.Key != "" {
					return row.Key, true
				}
			}
		}
		c.log.Warn("app key not found in cache", zap.Uint("aid", aid), zap.String("cid", identity.CID))
		return "", false
	}

	cid, ok := identity.CompanyID()
	if !ok {
		return "", false
	}
	for _, row := range c.byCompany[cid] {
		if row.AID == aid && row.Key != "" {
			return row.Key, true
		}
	}
	c.log.Warn("app key not found in cache", zap.Uint("aid", aid), zap.String("cid", identity.CID))
	return "", false
}

func stripKey(row models.AppRecord) models.AppRecord {
	row.Key = ""
	return row
}

// Ports is the high-water mark of ports handed out to zones.
type Ports struct {
	MaxRestPort int `json:"max_rest_port"`
	MaxWSPort   int `json:"max_ws_port"`
	MaxProfPort int `json:"max_prof_port"`
}

// PortCache remembers the highest ports in use so the UI can propose the
// next free ones. It seeds itself from configured defaults when the app
// table holds nothing yet.
type PortCache struct {
	mu       sync.Mutex
	ports    *Ports
	defaults Ports
}

func NewPortCache(defaults Ports) *PortCache {
	return &PortCache{defaults: defaults}
}

// Seed installs the table maxima, falling back to the configured defaults
// when the table was empty.
func (c *PortCache) Seed(p Ports) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.MaxRestPort == 0 {
		p = c.defaults
	}
	c.ports = &p
}

// Get returns the current marks, lazily seeding the defaults.
func (c *PortCache) Get() Ports {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ports == nil {
		p := c.defaults
		c.ports = &p
	}
	return *c.ports
}

// Update overwrites the marks with the ports of a fresh deployment.
func (c *PortCache) Update(rest, ws, prof int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ports = &Ports{MaxRestPort: rest, MaxWSPort: ws, MaxProfPort: prof}
}
