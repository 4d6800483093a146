package appmanager

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"CimplrBankImport/api"
	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/events"
	"CimplrBankImport/internal/jobs"
	"CimplrBankImport/internal/logger"
	"CimplrBankImport/internal/resource"
	"CimplrBankImport/internal/serviceiface"

	"gopkg.in/yaml.v3"
)

// ArtifactBackend is what the pipeline and the janitor need from the
// artifact store.
type ArtifactBackend interface {
	bankimport.ArtifactStore
	jobs.TempLister
}

var (
	store     bankimport.Store
	artifacts ArtifactBackend
	parser    bankimport.StatementParser
	resources *resource.ResourceManager
)

func SetStore(s bankimport.Store) {
	store = s
}

func SetArtifacts(a ArtifactBackend) {
	artifacts = a
}

func SetParser(p bankimport.StatementParser) {
	parser = p
}

// lazyHealth resolves the resource manager when /api/health is hit, so the
// bankimport service does not depend on construction order.
type lazyHealth struct{}

func (lazyHealth) Health() map[string]resource.Health {
	if resources == nil {
		return nil
	}
	return resources.Health()
}

var serviceConstructors = map[string]func(map[string]interface{}) (serviceiface.Service, error){
	"logger": func(cfg map[string]interface{}) (serviceiface.Service, error) {
		l := logger.NewLoggerService(cfg)
		logger.SetGlobalLogger(l)
		return l, nil
	},
	"resourcemanager": func(cfg map[string]interface{}) (serviceiface.Service, error) {
		rm := resource.NewResourceManager(cfg)
		if store != nil {
			rm.AddResource(resourceName(store, "store"), store)
		}
		if artifacts != nil {
			rm.AddResource(resourceName(artifacts, "artifacts"), artifacts)
		}
		resources = rm
		return rm, nil
	},
	"bankimport": func(cfg map[string]interface{}) (serviceiface.Service, error) {
		if store == nil || artifacts == nil || parser == nil {
			return nil, fmt.Errorf("bankimport: store, artifacts and parser must be set before registering")
		}
		opts, err := bankimport.OptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		log := logger.Get()
		opts.Logger = &log
		var hub *events.Hub
		if config.Bool(cfg, "events_enabled", true) {
			hub = events.NewHub(config.Duration(cfg, "events_ping_interval", 30*time.Second), config.Int(cfg, "events_replay", 100))
			opts.Notifier = hub
		}
		svc := bankimport.NewService(store, artifacts, parser, opts)
		return api.NewBankImportService(cfg, svc, lazyHealth{}, hub), nil
	},
	"cron": func(cfg map[string]interface{}) (serviceiface.Service, error) {
		if artifacts == nil {
			return nil, fmt.Errorf("cron: artifacts must be set before registering")
		}
		return jobs.NewCronService(cfg, artifacts), nil
	},
}

func resourceName(r interface{}, fallback string) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fallback
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	mu       sync.Mutex
}

func NewAppManager() *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
	}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

// StartAll starts services in registration order, leaving the resource
// manager for last so its first heartbeat sees every resource.
func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	log := logger.Get()

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			continue
		}
		log.Info().Str("service", service.Name()).Msg("starting service")
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			log.Info().Str("service", service.Name()).Msg("starting service")
			if err := service.Start(); err != nil {
				return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops services in reverse order. Every service gets a Stop call;
// the first error is returned.
func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	var firstErr error
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	return firstErr
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseServiceSequence(data)
}

func ParseServiceSequence(data []byte) ([]ServiceConfig, error) {
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}

	// sort by start_order
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// FindConfig returns the config block of the named service.
func FindConfig(configs []ServiceConfig, name string) map[string]interface{} {
	for _, c := range configs {
		if c.Name == name {
			return c.Config
		}
	}
	return nil
}

func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) error {
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			log := logger.Get()
			log.Warn().Str("service", svc.Name).Msg("unknown service in sequence, skipping")
			continue
		}
		service, err := constructor(svc.Config)
		if err != nil {
			return fmt.Errorf("register %s: %w", svc.Name, err)
		}
		am.RegisterService(service)
	}
	return nil
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}
