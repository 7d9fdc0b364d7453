package mddi

import (
	"context"
	"fmt"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/sshd"
	"github.com/mddilink/mddi/util"
	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"
)

type m = map[string]any

// Main builds every configured link. Nothing touches the hardware beyond
// opening it until Control.Start is called. open may be nil to use the backend
// named by hardware.type.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger, open OpenFunc) (retcon *Control, reterr error) {
	ctx, cancel := context.WithCancel(context.Background())
	// Automatically cancel the context if Main returns an error, to signal all created goroutines to quit.
	defer func() {
		if reterr != nil {
			cancel()
		}
	}()

	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}

		// Print the final config
		l.Println(string(b))
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to configure the logger", err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		err := configLogger(l, c)
		if err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	ssh, err := sshd.NewSSHServer(l.WithField("subsystem", "sshd"), sshd.NewCommands(), "mddi")
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Error while creating SSH server", err)
	}
	wireSSHReload(l, ssh, c)
	var sshStart func()
	if c.GetBool("sshd.enabled", false) {
		sshStart, err = configSSH(l, ssh, c)
		if err != nil {
			return nil, util.ContextualizeIfNeeded("Error while configuring the sshd", err)
		}
	}

	if open == nil {
		open, err = backendFromConfig(c)
		if err != nil {
			return nil, util.ContextualizeIfNeeded("Failed to select the hardware backend", err)
		}
	}

	ccs, err := controllersFromConfig(c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to parse controllers", err)
	}

	host := NewHost()
	defer func() {
		if reterr != nil {
			if err := host.Close(); err != nil {
				l.WithError(err).Warn("Failed to close controllers")
			}
		}
	}()

	for _, cc := range ccs {
		lc := NewLinkConfigFromConfig(c, cc.Name, cc.Index)
		if configTest {
			if err := lc.validate(); err != nil {
				return nil, util.NewContextualError("Invalid link configuration", m{"controller": cc.Name}, err)
			}
			continue
		}

		ctrl, err := open(l, cc)
		if err != nil {
			return nil, util.NewContextualError("Failed to open controller", m{"controller": cc.Name, "base": fmt.Sprintf("%#x", cc.Base), "irq": cc.IRQ}, err)
		}

		link, err := NewLink(l, lc, ctrl, ctrl.Memory(), PowerHooks{})
		if err != nil {
			closeController(ctrl)
			return nil, util.NewContextualError("Failed to create link", m{"controller": cc.Name}, err)
		}

		if err := host.Add(link, ctrl); err != nil {
			closeController(ctrl)
			return nil, util.NewContextualError("Failed to register link", m{"controller": cc.Name}, err)
		}
	}

	statsStart, err := startStats(l, c, buildVersion, configTest)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to start stats emitter", err)
	}

	ctl := &Control{
		l:            l,
		ctx:          ctx,
		cancel:       cancel,
		host:         host,
		devices:      newDeviceRegistry(l),
		buildVersion: buildVersion,
		ssh:          ssh,
		sshStart:     sshStart,
		statsStart:   statsStart,
	}
	ctl.commands = newCommandTable(l, c, ctl)
	ssh.SetCommands(ctl.commands)

	c.CatchHUP(ctx)

	return ctl, nil
}
