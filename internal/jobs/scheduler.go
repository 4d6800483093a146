package jobs

import (
	"time"

	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/logger"
	"CimplrBankImport/internal/serviceiface"

	"github.com/robfig/cron/v3"
)

type CronService struct {
	config    map[string]interface{}
	artifacts TempLister
	cron      *cron.Cron
}

func NewCronService(cfg map[string]interface{}, artifacts TempLister) serviceiface.Service {
	return &CronService{
		config:    cfg,
		artifacts: artifacts,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	janitorConfig := NewDefaultJanitorConfig()
	janitorConfig.Schedule = config.String(s.config, "janitor_schedule", janitorConfig.Schedule)
	janitorConfig.MaxAge = config.Duration(s.config, "temp_max_age", janitorConfig.MaxAge)
	janitorConfig.TimeZone = config.String(s.config, "timezone", janitorConfig.TimeZone)

	loc, err := time.LoadLocation(janitorConfig.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	s.cron = cron.New(cron.WithLocation(loc))

	if _, err := RunJanitor(s.cron, janitorConfig, s.artifacts); err != nil {
		return err
	}
	s.cron.Start()

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("Cron service started with temp upload janitor (" + janitorConfig.Schedule + ")")
	}
	return nil
}

func (s *CronService) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

// Entries exposes the scheduled jobs.
func (s *CronService) Entries() []cron.Entry {
	if s.cron == nil {
		return nil
	}
	return s.cron.Entries()
}
