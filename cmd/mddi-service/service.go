package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/mddilink/mddi"
	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/util"
	"github.com/sirupsen/logrus"
)

var logger service.Logger

type program struct {
	configPath *string
	configTest *bool
	build      string
	control    *mddi.Control
}

func (p *program) Start(s service.Service) error {
	// Start should not block.
	logger.Info("MDDI service starting.")

	l := logrus.New()
	HookLogger(l)

	c := config.NewC(l)
	if err := c.Load(*p.configPath); err != nil {
		return fmt.Errorf("failed to load config: %s", err)
	}

	var err error
	p.control, err = mddi.Main(c, *p.configTest, p.build, l, nil)
	if err != nil {
		return err
	}

	go func() {
		if err := p.control.Start(); err != nil {
			util.LogWithContextIfNeeded("Some controllers failed to attach", err, l)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	logger.Info("MDDI service stopping.")
	if p.control != nil {
		p.control.Stop()
	}
	return nil
}

func doService(configPath *string, configTest *bool, build string, serviceFlag *string) {
	if *configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			panic(err)
		}
		*configPath = filepath.Dir(ex) + "/config.yml"
	}

	svcConfig := &service.Config{
		Name:        "mddi",
		DisplayName: "MDDI Display Link Service",
		Description: "Brings up MDDI display links and publishes the attached clients",
		Arguments:   []string{"-service", "run", "-config", *configPath},
	}

	prg := &program{
		configPath: configPath,
		configTest: configTest,
		build:      build,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 5)
	logger, err = s.Logger(errs)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			err := <-errs
			if err != nil {
				log.Print(err)
			}
		}
	}()

	switch *serviceFlag {
	case "run":
		if err := s.Run(); err != nil {
			logger.Error(err)
		}
	default:
		if err := service.Control(s, *serviceFlag); err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			log.Fatal(err)
		}
	}
}
