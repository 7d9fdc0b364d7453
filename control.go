package mddi

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mddilink/mddi/sshd"
	"github.com/mddilink/mddi/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Control is the handle returned by Main. Everything that reaches into the
// running links from outside goes through here.
type Control struct {
	l            *logrus.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	host         *Host
	devices      *deviceRegistry
	buildVersion string
	commands     *sshd.Commands
	ssh          *sshd.SSHServer
	sshStart     func()
	statsStart   func()

	stopOnce sync.Once
	done     chan struct{}
	eg       *errgroup.Group
}

// Start runs the interrupt domain of every controller and attaches each link.
// Links that fail to attach are logged and skipped, the returned error joins
// all of their failures.
func (c *Control) Start() error {
	c.done = make(chan struct{})
	c.eg, _ = errgroup.WithContext(c.ctx)

	for _, idx := range c.host.Indexes() {
		ctrl, _ := c.host.Controller(idx)
		c.eg.Go(func() error {
			return ctrl.Run(c.done)
		})
	}

	if c.sshStart != nil {
		go c.sshStart()
	}
	if c.statsStart != nil {
		go c.statsStart()
	}

	var errs []error
	for _, idx := range c.host.Indexes() {
		link, _ := c.host.Link(idx)
		res, err := link.Attach(c.devices)
		if err != nil {
			err = util.NewContextualError("Failed to attach controller", m{"controller": link.Name()}, err)
			util.LogWithContextIfNeeded("Failed to attach controller", err, c.l)
			errs = append(errs, err)
			continue
		}
		c.l.WithField("controller", link.Name()).WithField("client", res).Info("Controller attached")
	}

	return errors.Join(errs...)
}

// Stop shuts the interrupt domains down and waits for them to exit.
func (c *Control) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		if c.ssh != nil {
			c.ssh.Stop()
		}
		if c.done != nil {
			close(c.done)
			if err := c.eg.Wait(); err != nil {
				c.l.WithError(err).Error("Interrupt handler failed")
			}
		}
		if err := c.host.Close(); err != nil {
			c.l.WithError(err).Warn("Failed to close controllers")
		}
		c.l.Info("Goodbye")
	})
}

// ShutdownBlock will listen for and block on term and interrupt signals, calling Control.Stop() once signalled
func (c *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)

	rawSig := <-sigChan
	sig := rawSig.String()
	c.l.WithField("signal", sig).Info("Caught signal, shutting down")
	c.Stop()
}

// Context is canceled once Stop was called.
func (c *Control) Context() context.Context {
	return c.ctx
}

func (c *Control) Host() *Host {
	return c.host
}

// Clients lists the clients published so far.
func (c *Control) Clients() []*Client {
	return c.devices.listClients()
}

// Panels lists the panels published so far.
func (c *Control) Panels() []*Panel {
	return c.devices.listPanels()
}
