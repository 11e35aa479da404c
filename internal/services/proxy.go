package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"au-panel/internal/cache"
	"au-panel/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type proxyAction struct {
	Path      string
	AdminOnly bool
}

// proxyActions maps the public action names to the instance endpoints they
// reach. Admin-only actions are refused for regular users before any key
// lookup happens.
var proxyActions = map[string]proxyAction{
	"info":           {Path: "info"},
	"status":         {Path: "status"},
	"live":           {Path: "live"},
	"logs":           {Path: "admin/log"},
	"config-reload":  {Path: "admin/config/reload", AdminOnly: true},
	"config-save":    {Path: "admin/config/save", AdminOnly: true},
	"monitor-start":  {Path: "admin/monitor/start"},
	"monitor-stop":   {Path: "admin/monitor/stop"},
	"profiler-start": {Path: "admin/profiler/start", AdminOnly: true},
	"profiler-stop":  {Path: "admin/profiler/stop", AdminOnly: true},
}

// ProxyService relays monitoring calls to running instances, attaching the
// app's secret key from the cache. The key never leaves the server.
type ProxyService struct {
	cache  *cache.AppCache
	client *http.Client
	sem    *semaphore.Weighted
	log    *zap.Logger
}

func NewProxyService(appCache *cache.AppCache, workers int64, log *zap.Logger) *ProxyService {
	return &ProxyService{
		cache:  appCache,
		client: &http.Client{Timeout: 5 * time.Second},
		sem:    semaphore.NewWeighted(workers),
		log:    log,
	}
}

// Forward performs the named action against the instance at ip:port on
// behalf of the caller and returns the upstream JSON payload as-is.
func (s *ProxyService) Forward(ctx context.Context, caller models.Identity, action string, aid uint, ip string, port int) (json.RawMessage, error) {
	act, ok := proxyActions[action]
	if !ok {
		return nil, ErrUnknownAction
	}
	if act.AdminOnly && !caller.Role.CanManage() {
		return nil, ErrForbidden
	}

	key, ok := s.cache.SecretKey(aid, caller)
	if !ok {
		return nil, ErrKeyNotFound
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	url := fmt.Sprintf("http://%s:%d/%s", ip, port, act.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", key)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("instance request failed",
			zap.String("action", action), zap.String("url", url), zap.Error(err))
		return nil, ErrUpstream
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrUpstream
	}
	if resp.StatusCode != http.StatusOK {
		s.log.Error("instance returned non-ok status",
			zap.String("action", action), zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil, ErrUpstream
	}
	return json.RawMessage(body), nil
}
