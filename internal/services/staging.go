package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"au-panel/internal/config"

	"go.uber.org/zap"
)

// Descriptor is the appconfig.json document of a zone: the zone identity
// plus the list of app units it runs.
type Descriptor struct {
	App      DescriptorApp `json:"app"`
	Log      DescriptorLog `json:"log"`
	AppUnits []UnitEntry   `json:"appunits"`
}

type DescriptorApp struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

type DescriptorLog struct {
	Level        string `json:"leg_level"`
	FileMaxSize  int    `json:"log_file_max_size"`
	FileBasePath string `json:"log_file_base_path"`
}

type UnitEntry struct {
	UName    string `json:"uname"`
	Enable   int    `json:"enable"`
	PoolSize int    `json:"pool_size"`
	IfName   string `json:"ifname"`
	Path     string `json:"path"`
	Name     string `json:"name"`
}

// NewDescriptor builds a zone descriptor seeded with one unit and the
// default log section.
func NewDescriptor(name, zid, version string, unit UnitEntry) *Descriptor {
	return &Descriptor{
		App: DescriptorApp{Name: name, ID: zid, Version: version},
		Log: DescriptorLog{
			Level:        "debug",
			FileMaxSize:  10000,
			FileBasePath: "/var/log/app/",
		},
		AppUnits: []UnitEntry{unit},
	}
}

// mainconfig.json handed to every new zone. The running instance reads it
// for its monitor endpoints and plugin set.
var defaultMainConfig = map[string]any{
	"log": map[string]any{
		"leg_level":          "debug",
		"log_file_max_size":  10000,
		"log_file_base_path": "/var/log/app/",
	},
	"http_monitor": map[string]any{
		"enable":        1,
		"ip_addr":       "0.0.0.0",
		"port":          8080,
		"profiler_port": 8881,
	},
	"ws_monitor": map[string]any{
		"enable":     1,
		"auto_start": 0,
		"ip_addr":    "0.0.0.0",
		"port":       2345,
	},
	"mq_engine": map[string]any{
		"enable": 0,
		"ifname": "IMQClient",
		"path":   "plugins/mq/redis/",
		"name":   "zredisclient.so",
	},
	"http": map[string]any{
		"enable": 1,
		"ifname": "IZHTTPClient",
		"path":   "plugins/http/",
		"name":   "zhttpclient.so",
	},
	"websocket": map[string]any{
		"enable": 1,
		"ifname": "IZWSClient",
		"path":   "plugins/websocket/",
		"name":   "zwsclient.so",
	},
	"logger": map[string]any{
		"enable": 1,
		"ifname": "IZLogger",
		"path":   "plugins/logger/",
		"name":   "zlogger.so",
	},
	"mailer": map[string]any{
		"enable": 1,
		"ifname": "IZMailMessage",
		"path":   "plugins/mailer/",
		"name":   "zmailer.so",
	},
}

// StagingService owns the filesystem side of deployments: archive
// validation and extraction under the temp dir, zone scaffolding under the
// apps dir, descriptor edits and quarantine moves.
type StagingService struct {
	tempDir string
	appsDir string
	log     *zap.Logger
}

func NewStagingService(cfg *config.Config, log *zap.Logger) *StagingService {
	return &StagingService{
		tempDir: cfg.Paths.Temp,
		appsDir: cfg.Paths.Apps,
		log:     log,
	}
}

// BundleBase is the archive root directory name derived from a bundle file
// name: everything before the first dot.
func BundleBase(bundleName string) string {
	return strings.SplitN(bundleName, ".", 2)[0]
}

// PathTop is the first component of a unit's install path inside its zone.
func PathTop(unitPath string) string {
	return strings.SplitN(unitPath, "/", 2)[0]
}

func sanitizeName(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}

// ValidateArchive checks the required layout against the archive's entry
// list without writing anything: <base>/<bundleName> and
// <base>/config/config.json must both be present.
func (s *StagingService) ValidateArchive(data []byte, bundleName string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: not a valid zip archive", ErrValidation)
	}

	base := BundleBase(bundleName)
	required := []string{
		base + "/" + bundleName,
		base + "/config/config.json",
	}

	names := make(map[string]bool, len(r.File))
	for _, f := range r.File {
		names[f.Name] = true
	}

	for _, want := range required {
		if !names[want] {
			s.log.Error("uploaded archive is missing a required entry",
				zap.String("bundle", bundleName), zap.String("missing", want))
			return fmt.Errorf("%w: archive does not contain %s", ErrValidation, want)
		}
	}
	return nil
}

// StageArchive validates the archive, then saves it as <temp>/<base>.zip
// and extracts it under <temp>/<base>/. Validation happens before any byte
// is written, so a rejected archive leaves no temp residue.
func (s *StagingService) StageArchive(data []byte, bundleName string) error {
	if err := s.ValidateArchive(data, bundleName); err != nil {
		return err
	}

	base := BundleBase(bundleName)
	zipPath := filepath.Join(s.tempDir, base+".zip")
	if err := os.WriteFile(zipPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save archive: %w", err)
	}

	extractRoot := filepath.Join(s.tempDir, base)
	if err := s.extract(data, extractRoot); err != nil {
		return err
	}

	s.log.Info("archive staged",
		zap.String("bundle", bundleName), zap.String("dir", extractRoot))
	return nil
}

func (s *StagingService) extract(data []byte, root string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: not a valid zip archive", ErrValidation)
	}

	for _, f := range r.File {
		target := filepath.Join(root, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) {
			return fmt.Errorf("%w: archive entry escapes extraction root: %s", ErrValidation, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode().Perm()|0200)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// CleanupTemp removes the staged zip and extraction directory of a bundle.
func (s *StagingService) CleanupTemp(bundleName string) {
	base := BundleBase(bundleName)
	if err := os.Remove(filepath.Join(s.tempDir, base+".zip")); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove staged archive", zap.String("bundle", bundleName), zap.Error(err))
	}
	if err := os.RemoveAll(filepath.Join(s.tempDir, base)); err != nil {
		s.log.Warn("failed to remove extraction dir", zap.String("bundle", bundleName), zap.Error(err))
	}
}

// ZonePath is the on-disk root of a zone.
func (s *StagingService) ZonePath(cname, zid string) string {
	return filepath.Join(s.appsDir, cname, zid)
}

// ScaffoldZone creates the directory skeleton of a new zone and writes its
// config documents and start scripts.
func (s *StagingService) ScaffoldZone(cname, zid, appName string, restPort, wsPort, profPort int, desc *Descriptor) error {
	zone := s.ZonePath(cname, zid)
	if err := os.MkdirAll(filepath.Join(zone, "logs"), 0755); err != nil {
		return fmt.Errorf("failed to create zone directories: %w", err)
	}

	if err := s.writeJSON(filepath.Join(zone, "appconfig.json"), desc); err != nil {
		return err
	}
	if err := s.writeJSON(filepath.Join(zone, "mainconfig.json"), defaultMainConfig); err != nil {
		return err
	}

	if err := writeBuildScript(appName, zone, restPort, wsPort, profPort); err != nil {
		return err
	}
	if err := writeRunScript(s.appsDir, zone, restPort, wsPort, profPort); err != nil {
		return err
	}

	s.log.Info("zone scaffolded", zap.String("company", cname), zap.String("zid", zid))
	return nil
}

func (s *StagingService) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeBuildScript(appName, zone string, restPort, wsPort, profPort int) error {
	container := sanitizeName(appName)
	logsPath := filepath.Join(zone, "logs")

	script := fmt.Sprintf(`#!/bin/sh

docker run -it --hostname %[1]s_1 --name %[1]s_1 --restart unless-stopped \
	--volume=%[2]s/:/home/test \
	--volume=%[3]s/:/var/log/app \
	-p %[4]d:8080/tcp -p %[5]d:8081/tcp -p %[6]d:2345/tcp -d zaion.ai/zaf-alpine-amd64:0.0.0.1
`, container, zone, logsPath, restPort, wsPort, profPort)

	path := filepath.Join(zone, "build_"+container+".sh")
	return os.WriteFile(path, []byte(script), 0755)
}

func writeRunScript(appsDir, zone string, restPort, wsPort, profPort int) error {
	mainPath := filepath.Join(filepath.Dir(appsDir), "debian", "zaf")
	if err := os.MkdirAll(mainPath, 0755); err != nil {
		return err
	}
	logsPath := filepath.Join(zone, "logs")

	script := fmt.Sprintf(`#!/bin/sh

MAINPATH=%s/
APPPATH=%s/
LOGPATH=%s/

cd $MAINPATH

./app --mainpath $MAINPATH --apppath $APPPATH --logpath $LOGPATH --restport %d --wsport %d --profport %d
`, mainPath, zone, logsPath, restPort, wsPort, profPort)

	path := filepath.Join(zone, "run.sh")
	return os.WriteFile(path, []byte(script), 0755)
}

// InstallBundle copies the extracted bundle payload into the zone,
// replacing any previous install of the same bundle.
func (s *StagingService) InstallBundle(cname, zid, unitPath, bundleName string) error {
	base := BundleBase(bundleName)
	src := filepath.Join(s.tempDir, base, base)
	dst := filepath.Join(s.ZonePath(cname, zid), PathTop(unitPath), base)

	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("failed to install bundle %s: %w", bundleName, err)
	}
	return nil
}

// MergeBundle merges the extraction root into the zone's unit directory,
// overwriting files that already exist.
func (s *StagingService) MergeBundle(cname, zid, unitPath, bundleName string) error {
	base := BundleBase(bundleName)
	src := filepath.Join(s.tempDir, base)
	dst := filepath.Join(s.ZonePath(cname, zid), PathTop(unitPath))

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	if err := mergeTree(src, dst); err != nil {
		return fmt.Errorf("failed to merge bundle %s: %w", bundleName, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func mergeTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0755); err != nil {
				return err
			}
			if err := mergeTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0200)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// LoadDescriptor reads a zone's appconfig.json.
func (s *StagingService) LoadDescriptor(cname, zid string) (*Descriptor, error) {
	path := filepath.Join(s.ZonePath(cname, zid), "appconfig.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone descriptor: %w", err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse zone descriptor: %w", err)
	}
	return &desc, nil
}

func (s *StagingService) saveDescriptor(cname, zid string, desc *Descriptor) error {
	return s.writeJSON(filepath.Join(s.ZonePath(cname, zid), "appconfig.json"), desc)
}

// AppendUnit adds a unit entry to a zone's descriptor.
func (s *StagingService) AppendUnit(cname, zid string, unit UnitEntry) error {
	desc, err := s.LoadDescriptor(cname, zid)
	if err != nil {
		return err
	}
	desc.AppUnits = append(desc.AppUnits, unit)
	return s.saveDescriptor(cname, zid, desc)
}

// PatchUnit updates the entry keyed by extUName. String fields only
// overwrite when non-empty; Enable and PoolSize always apply.
func (s *StagingService) PatchUnit(cname, zid, extUName string, unit UnitEntry) error {
	desc, err := s.LoadDescriptor(cname, zid)
	if err != nil {
		return err
	}
	for i := range desc.AppUnits {
		if desc.AppUnits[i].UName != extUName {
			continue
		}
		entry := &desc.AppUnits[i]
		if unit.UName != "" {
			entry.UName = unit.UName
		}
		if unit.IfName != "" {
			entry.IfName = unit.IfName
		}
		if unit.Path != "" {
			entry.Path = unit.Path
		}
		if unit.Name != "" {
			entry.Name = unit.Name
		}
		entry.Enable = unit.Enable
		entry.PoolSize = unit.PoolSize
	}
	return s.saveDescriptor(cname, zid, desc)
}

// RemoveUnit drops the entry keyed by uname from a zone's descriptor.
func (s *StagingService) RemoveUnit(cname, zid, uname string) error {
	desc, err := s.LoadDescriptor(cname, zid)
	if err != nil {
		return err
	}
	kept := desc.AppUnits[:0]
	for _, entry := range desc.AppUnits {
		if entry.UName != uname {
			kept = append(kept, entry)
		}
	}
	desc.AppUnits = kept
	return s.saveDescriptor(cname, zid, desc)
}

// QuarantineZone moves a whole zone under Delete/, suffixing the target
// with _1, _2, ... when it already exists.
func (s *StagingService) QuarantineZone(cname, zid string) error {
	src := s.ZonePath(cname, zid)
	dst := filepath.Join(s.appsDir, "Delete", cname, zid)
	return s.moveWithSuffix(src, dst)
}

// QuarantineUnit moves one unit directory under Delete/.
func (s *StagingService) QuarantineUnit(cname, zid, pathTop, base string) error {
	src := filepath.Join(s.ZonePath(cname, zid), pathTop, base)
	dst := filepath.Join(s.appsDir, "Delete", cname, zid, pathTop, base)
	return s.moveWithSuffix(src, dst)
}

// QuarantineUnitForEdit moves the previous install of a unit under Edit/
// before the replacement is merged in.
func (s *StagingService) QuarantineUnitForEdit(cname, zid, pathTop, base string) error {
	src := filepath.Join(s.ZonePath(cname, zid), pathTop, base)
	dst := filepath.Join(s.appsDir, "Edit", cname, zid, pathTop, base)
	return s.moveWithSuffix(src, dst)
}

// QuarantineCompany moves a company's whole zone tree under Delete/.
func (s *StagingService) QuarantineCompany(cname string) error {
	src := filepath.Join(s.appsDir, cname)
	dst := filepath.Join(s.appsDir, "Delete", cname)
	return s.moveWithSuffix(src, dst)
}

// moveWithSuffix renames src to dst; earlier quarantined copies are kept by
// appending _1, _2, ... to the destination.
func (s *StagingService) moveWithSuffix(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("quarantine source missing", zap.String("path", src))
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	target := dst
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = fmt.Sprintf("%s_%d", dst, i)
	}

	if err := os.Rename(src, target); err != nil {
		return fmt.Errorf("failed to quarantine %s: %w", src, err)
	}
	s.log.Info("directory quarantined", zap.String("from", src), zap.String("to", target))
	return nil
}
