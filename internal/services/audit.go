package services

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"au-panel/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var auditHeader = []string{"id", "time", "actor", "role", "target", "action", "success", "error"}

// AuditSink appends one CSV row per mutation attempt, successful or not.
// A sink failure is logged and swallowed; auditing never blocks the change
// it describes.
type AuditSink struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

func NewAuditSink(dir string, log *zap.Logger) *AuditSink {
	return &AuditSink{
		path: filepath.Join(dir, "audit_log.csv"),
		log:  log,
	}
}

// Record writes one entry. target names the affected resource, err is nil
// for successful operations.
func (s *AuditSink) Record(actor string, role models.Role, target, action string, opErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Error("failed to open audit log", zap.Error(err))
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(auditHeader); err != nil {
			s.log.Error("failed to write audit header", zap.Error(err))
			return
		}
	}

	errText := ""
	success := "true"
	if opErr != nil {
		errText = opErr.Error()
		success = "false"
	}

	row := []string{
		"audit_" + uuid.NewString(),
		time.Now().Format(time.RFC3339),
		actor,
		strconv.Itoa(int(role)),
		target,
		action,
		success,
		errText,
	}
	if err := w.Write(row); err != nil {
		s.log.Error("failed to write audit entry", zap.Error(err))
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.log.Error("failed to flush audit entry", zap.Error(err))
	}
}
