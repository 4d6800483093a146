package resource

import (
	"context"
	"sort"
	"sync"
	"time"

	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/logger"
	"CimplrBankImport/internal/serviceiface"
)

// Pinger is implemented by resources the heartbeat can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the last heartbeat result for one resource.
type Health struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ResourceManager holds shared handles (store, artifact backend) by key and
// periodically pings the ones that support it.
type ResourceManager struct {
	resources         map[string]interface{}
	health            map[string]Health
	mu                sync.RWMutex
	stopChan          chan struct{}
	stopOnce          sync.Once
	heartbeatInterval time.Duration
	pingTimeout       time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) serviceiface.Service {
	return NewResourceManager(cfg)
}

func NewResourceManager(cfg map[string]interface{}) *ResourceManager {
	return &ResourceManager{
		resources:         make(map[string]interface{}),
		health:            make(map[string]Health),
		stopChan:          make(chan struct{}),
		heartbeatInterval: config.Duration(cfg, "heartbeat_interval", 30*time.Second),
		pingTimeout:       config.Duration(cfg, "ping_timeout", 5*time.Second),
	}
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("ResourceManager started")
	}
	rm.Check(context.Background())
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.Check(context.Background())
		}
	}
}

// Check pings every Pinger resource once and records the outcome. It
// reports whether all of them answered.
func (rm *ResourceManager) Check(ctx context.Context) bool {
	rm.mu.RLock()
	targets := make(map[string]Pinger)
	for key, r := range rm.resources {
		if p, ok := r.(Pinger); ok {
			targets[key] = p
		}
	}
	rm.mu.RUnlock()

	log := logger.Get()
	allOK := true
	results := make(map[string]Health, len(targets))
	for key, p := range targets {
		pctx, cancel := context.WithTimeout(ctx, rm.pingTimeout)
		err := p.Ping(pctx)
		cancel()
		h := Health{OK: err == nil, CheckedAt: time.Now().UTC()}
		if err != nil {
			allOK = false
			h.Error = err.Error()
			log.Warn().Err(err).Str("resource", key).Msg("heartbeat ping failed")
		}
		results[key] = h
	}

	rm.mu.Lock()
	for key, h := range results {
		rm.health[key] = h
	}
	rm.mu.Unlock()
	return allOK
}

// Health returns a copy of the latest heartbeat results.
func (rm *ResourceManager) Health() map[string]Health {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make(map[string]Health, len(rm.health))
	for k, v := range rm.health {
		out[k] = v
	}
	return out
}

func (rm *ResourceManager) AddResource(key string, resource interface{}) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = resource
}

func (rm *ResourceManager) GetResource(key string) (interface{}, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	resource, exists := rm.resources[key]
	return resource, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
	delete(rm.health, key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
