package services

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"au-panel/internal/cache"
	"au-panel/internal/config"
	"au-panel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authFixture struct {
	db       *models.Database
	sessions *cache.SessionCache
	auth     *AuthService
	users    *UserService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Auth.BcryptCost = 4
	cfg.DefaultUser.Username = "root"
	cfg.DefaultUser.Email = "root@localhost"
	cfg.DefaultUser.Password = "rootpass"

	db, err := models.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := cache.NewSessionCache(64, time.Minute)
	auth := NewAuthService(db, sessions, cfg, zap.NewNop())
	audit := NewAuditSink(t.TempDir(), zap.NewNop())
	users := NewUserService(db, auth, audit, zap.NewNop())

	require.NoError(t, auth.CreateDefaultUser())
	return &authFixture{db: db, sessions: sessions, auth: auth, users: users}
}

func (f *authFixture) addCompany(t *testing.T, name string, enable int) uint {
	t.Helper()
	company := &models.Company{Name: name, Enable: enable}
	require.NoError(t, f.db.Run(func(db *gorm.DB) error {
		return db.Create(company).Error
	}))
	return company.CID
}

func (f *authFixture) addUser(t *testing.T, name, cid string, role models.Role, enable int) uint {
	t.Helper()
	hashed, err := f.auth.HashPassword("pw")
	require.NoError(t, err)
	user := &models.User{
		Name: name, Email: name + "@test.example", HashedPassword: hashed,
		Enable: enable, CID: cid, UTID: role,
	}
	require.NoError(t, f.db.Run(func(db *gorm.DB) error {
		return db.Create(user).Error
	}))
	return user.UID
}

func TestLoginByNameAndEmail(t *testing.T) {
	f := newAuthFixture(t)

	token, user, err := f.auth.Login("root", "rootpass")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Empty(t, user.HashedPassword)
	assert.Equal(t, models.RoleSuperAdmin, user.UTID)

	_, _, err = f.auth.Login("root@localhost", "rootpass")
	assert.NoError(t, err)

	identity, ok := f.sessions.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, "root", identity.Name)
	assert.True(t, identity.Global())
}

func TestLoginRejections(t *testing.T) {
	f := newAuthFixture(t)
	enabled := f.addCompany(t, "acme", 1)
	disabled := f.addCompany(t, "globex", 0)

	f.addUser(t, "ok", itoa(enabled), models.RoleUser, 1)
	f.addUser(t, "off", itoa(enabled), models.RoleUser, 0)
	f.addUser(t, "stuck", itoa(disabled), models.RoleUser, 1)

	_, _, err := f.auth.Login("ok", "pw")
	assert.NoError(t, err)

	// Wrong password.
	_, _, err = f.auth.Login("ok", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user.
	_, _, err = f.auth.Login("ghost", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Disabled user.
	_, _, err = f.auth.Login("off", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Enabled user of a disabled company.
	_, _, err = f.auth.Login("stuck", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGlobalUserSkipsCompanyCheck(t *testing.T) {
	f := newAuthFixture(t)

	// No company row exists for "*", yet login succeeds.
	f.addUser(t, "operator", models.GlobalCompany, models.RoleSuperAdmin, 1)
	_, _, err := f.auth.Login("operator", "pw")
	assert.NoError(t, err)
}

func TestCreateDefaultUserIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.auth.CreateDefaultUser())

	var count int64
	require.NoError(t, f.db.Run(func(db *gorm.DB) error {
		return db.Model(&models.User{}).Count(&count).Error
	}))
	assert.Equal(t, int64(1), count)
}

func TestAdminDeleteSoftDisables(t *testing.T) {
	f := newAuthFixture(t)
	cid := f.addCompany(t, "acme", 1)

	adminUID := f.addUser(t, "boss", itoa(cid), models.RoleAdmin, 1)
	targetUID := f.addUser(t, "worker", itoa(cid), models.RoleUser, 1)

	admin := models.Identity{UID: adminUID, Name: "boss", Role: models.RoleAdmin, CID: itoa(cid)}
	require.NoError(t, f.users.DeleteUser(admin, targetUID))

	// The row survives but the account is disabled.
	var target models.User
	require.NoError(t, f.db.Run(func(db *gorm.DB) error {
		return db.First(&target, targetUID).Error
	}))
	assert.Equal(t, 0, target.Enable)

	_, _, err := f.auth.Login("worker", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminCannotDeleteAcrossCompanies(t *testing.T) {
	f := newAuthFixture(t)
	acme := f.addCompany(t, "acme", 1)
	globex := f.addCompany(t, "globex", 1)

	adminUID := f.addUser(t, "boss", itoa(acme), models.RoleAdmin, 1)
	otherUID := f.addUser(t, "remote", itoa(globex), models.RoleUser, 1)

	admin := models.Identity{UID: adminUID, Name: "boss", Role: models.RoleAdmin, CID: itoa(acme)}
	assert.ErrorIs(t, f.users.DeleteUser(admin, otherUID), ErrForbidden)
}

func TestSuperAdminHardDeleteSparesSuperAdmins(t *testing.T) {
	f := newAuthFixture(t)
	cid := f.addCompany(t, "acme", 1)

	peerUID := f.addUser(t, "peer", models.GlobalCompany, models.RoleSuperAdmin, 1)
	workerUID := f.addUser(t, "worker", itoa(cid), models.RoleUser, 1)

	super := models.Identity{UID: 1, Name: "root", Role: models.RoleSuperAdmin, CID: models.GlobalCompany}

	// Another super admin cannot be hard deleted.
	assert.ErrorIs(t, f.users.DeleteUser(super, peerUID), ErrUserNotFound)

	require.NoError(t, f.users.DeleteUser(super, workerUID))
	err := f.db.Run(func(db *gorm.DB) error {
		var u models.User
		return db.First(&u, workerUID).Error
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSelfDeleteRefused(t *testing.T) {
	f := newAuthFixture(t)

	super := models.Identity{UID: 1, Name: "root", Role: models.RoleSuperAdmin, CID: models.GlobalCompany}
	assert.ErrorIs(t, f.users.DeleteUser(super, 1), ErrSelfDelete)
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
