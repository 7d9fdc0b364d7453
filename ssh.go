package mddi

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/sshd"
	"github.com/mddilink/mddi/util"
	"github.com/sirupsen/logrus"
)

type sshLinkFlags struct {
	Link *int
}

type sshPrintFlags struct {
	Link   *int
	Json   bool
	Pretty bool
}

func linkFlags() (*flag.FlagSet, any) {
	fl := flag.NewFlagSet("", flag.ContinueOnError)
	s := sshLinkFlags{Link: fl.Int("link", 0, "Controller index to act on")}
	return fl, &s
}

func printFlags() (*flag.FlagSet, any) {
	fl := flag.NewFlagSet("", flag.ContinueOnError)
	s := sshPrintFlags{Link: fl.Int("link", 0, "Controller index to act on")}
	fl.BoolVar(&s.Json, "json", false, "outputs as json with more information")
	fl.BoolVar(&s.Pretty, "pretty", false, "pretty prints json, assumes -json")
	return fl, &s
}

func wireSSHReload(l *logrus.Logger, ssh *sshd.SSHServer, c *config.C) {
	c.RegisterReloadCallback(func(c *config.C) {
		if c.GetBool("sshd.enabled", false) {
			sshRun, err := configSSH(l, ssh, c)
			if err != nil {
				l.WithError(err).Error("Failed to reconfigure the sshd")
				ssh.Stop()
			}
			if sshRun != nil {
				go sshRun()
			}
		} else {
			ssh.Stop()
		}
	})
}

// configSSH reads the sshd section and returns a function that starts the
// listener, or nil when sshd is disabled.
func configSSH(l *logrus.Logger, ssh *sshd.SSHServer, c *config.C) (func(), error) {
	listen := c.GetString("sshd.listen", "")
	if listen == "" {
		return nil, fmt.Errorf("sshd.listen must be provided")
	}

	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, fmt.Errorf("invalid sshd.listen address: %s", err)
	}
	if port == "22" {
		return nil, fmt.Errorf("sshd.listen can not use port 22")
	}

	hostKeyPathOrKey := c.GetString("sshd.host_key", "")
	if hostKeyPathOrKey == "" {
		return nil, fmt.Errorf("sshd.host_key must be provided")
	}

	var hostKeyBytes []byte
	if strings.Contains(hostKeyPathOrKey, "-----BEGIN") {
		hostKeyBytes = []byte(hostKeyPathOrKey)
	} else {
		hostKeyBytes, err = os.ReadFile(hostKeyPathOrKey)
		if err != nil {
			return nil, fmt.Errorf("error while loading sshd.host_key file: %s", err)
		}
	}

	blocks := util.PEMBlocks(hostKeyBytes)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("sshd.host_key did not contain a PEM block")
	}
	for _, b := range blocks {
		if err := ssh.SetHostKey(b); err != nil {
			return nil, fmt.Errorf("error while adding sshd.host_key: %s", err)
		}
	}

	ssh.ClearAuthorizedKeys()
	users := c.GetMapSlice("sshd.authorized_users")
	if len(users) == 0 {
		l.Info("no ssh users to authorize")
	}

	for _, u := range users {
		user, ok := u["user"].(string)
		if !ok {
			l.WithField("sshKeyConfig", u).Warn("Authorized user is missing the user field")
			continue
		}

		switch v := u["keys"].(type) {
		case string:
			if err := ssh.AddAuthorizedKey(user, v); err != nil {
				l.WithError(err).WithField("sshKeyConfig", u).WithField("sshKey", v).Warn("Failed to authorize key")
			}

		case []any:
			for _, subK := range v {
				sk, ok := subK.(string)
				if !ok {
					l.WithField("sshKeyConfig", u).WithField("sshKey", subK).Warn("Did not understand ssh key")
					continue
				}

				if err := ssh.AddAuthorizedKey(user, sk); err != nil {
					l.WithError(err).WithField("sshKeyConfig", sk).Warn("Failed to authorize key")
				}
			}

		default:
			l.WithField("sshKeyConfig", u).Warn("Authorized user is missing the keys field or was not understood")
		}
	}

	if !c.GetBool("sshd.enabled", false) {
		ssh.Stop()
		return nil, nil
	}

	return func() {
		ssh.Stop()
		if err := ssh.Run(listen); err != nil {
			l.WithField("err", err).Warn("Failed to run the SSH server")
		}
	}, nil
}

// newCommandTable builds the commands shared by ssh sessions and scripts.
func newCommandTable(l *logrus.Logger, c *config.C, ctl *Control) *sshd.Commands {
	cmds := sshd.NewCommands()

	cmds.Register(&sshd.Command{
		Name:             "list-links",
		ShortDescription: "List every controller and its attached client",
		Callback: func(_ any, _ []string, w sshd.StringWriter) error {
			return sshListLinks(ctl.host, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "list-clients",
		ShortDescription: "List published clients and panels",
		Callback: func(_ any, _ []string, w sshd.StringWriter) error {
			for _, cl := range ctl.Clients() {
				if err := w.WriteLine(fmt.Sprintf("%s: %s (%dx%d)", cl.Link.Name(), cl.Name, cl.Caps.BitmapWidth, cl.Caps.BitmapHeight)); err != nil {
					return err
				}
			}
			for _, p := range ctl.Panels() {
				if err := w.WriteLine(fmt.Sprintf("%s: panel %s (%dx%d)", p.Link.Name(), p.Name, p.Width, p.Height)); err != nil {
					return err
				}
			}
			return nil
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "read",
		ShortDescription: "Reads a client register over the reverse link",
		Help:             "read [-link <idx>] <reg>",
		Flags:            linkFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			return sshReadRegister(ctl.host, fs, a, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "write",
		ShortDescription: "Writes a client register",
		Help:             "write [-link <idx>] <reg> <value>",
		Flags:            linkFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			return sshWriteRegister(ctl.host, fs, a, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "status",
		ShortDescription: "Requests and prints the client status",
		Flags:            printFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			return sshStatus(ctl.host, fs, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "caps",
		ShortDescription: "Prints the last client capabilities received",
		Flags:            printFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			return sshCaps(ctl.host, fs, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "suspend",
		ShortDescription: "Suspends a link",
		Flags:            linkFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			link, err := flagLink(ctl.host, fs, w)
			if err != nil {
				return err
			}
			link.Suspend()
			return w.WriteLine(link.Name() + " suspended")
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "resume",
		ShortDescription: "Resumes a suspended link",
		Flags:            linkFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			link, err := flagLink(ctl.host, fs, w)
			if err != nil {
				return err
			}
			link.Resume()
			return w.WriteLine(link.Name() + " resumed")
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "hibernate",
		ShortDescription: "Turns automatic hibernation on or off",
		Help:             "hibernate [-link <idx>] on|off",
		Flags:            linkFlags,
		Callback: func(fs any, a []string, w sshd.StringWriter) error {
			link, err := flagLink(ctl.host, fs, w)
			if err != nil {
				return err
			}
			if len(a) != 1 || (a[0] != "on" && a[0] != "off") {
				return w.WriteLine("Usage: hibernate [-link <idx>] on|off")
			}
			link.SetAutoHibernate(a[0] == "on")
			return w.WriteLine(fmt.Sprintf("%s auto hibernate %s", link.Name(), a[0]))
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "reload",
		ShortDescription: "Reloads configuration from disk, same as sending HUP to the process",
		Callback: func(_ any, _ []string, w sshd.StringWriter) error {
			c.ReloadConfig()
			return w.WriteLine("Config reloaded")
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "start-cpu-profile",
		ShortDescription: "Starts a cpu profile and write output to the provided file, ex: `cpu-profile.pb.gz`",
		Callback:         sshStartCpuProfile,
	})

	cmds.Register(&sshd.Command{
		Name:             "stop-cpu-profile",
		ShortDescription: "Stops a cpu profile and writes output to the previously provided file",
		Callback: func(_ any, _ []string, w sshd.StringWriter) error {
			pprof.StopCPUProfile()
			return w.WriteLine("If a CPU profile was running it is now stopped")
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "log-level",
		ShortDescription: "Gets or sets the current log level",
		Callback: func(_ any, a []string, w sshd.StringWriter) error {
			return sshLogLevel(l, a, w)
		},
	})

	cmds.Register(&sshd.Command{
		Name:             "version",
		ShortDescription: "Prints the currently running version of mddi",
		Callback: func(_ any, _ []string, w sshd.StringWriter) error {
			return w.WriteLine(fmt.Sprintf("version=%v", ctl.buildVersion))
		},
	})

	return cmds
}

func flagLink(host *Host, fs any, w sshd.StringWriter) (*Link, error) {
	idx := 0
	switch f := fs.(type) {
	case *sshLinkFlags:
		idx = *f.Link
	case *sshPrintFlags:
		idx = *f.Link
	}

	link, err := host.Link(idx)
	if err != nil {
		_ = w.WriteLine(err.Error())
		return nil, err
	}
	return link, nil
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func sshListLinks(host *Host, w sshd.StringWriter) error {
	for _, idx := range host.Indexes() {
		link, _ := host.Link(idx)
		client := "none"
		if cl := link.Client(); cl != nil {
			client = cl.Name
		}
		if err := w.WriteLine(fmt.Sprintf("%d %s version=%#x client=%s", idx, link.Name(), link.Version(), client)); err != nil {
			return err
		}
	}
	return nil
}

func sshReadRegister(host *Host, fs any, a []string, w sshd.StringWriter) error {
	link, err := flagLink(host, fs, w)
	if err != nil {
		return err
	}

	if len(a) != 1 {
		return w.WriteLine("Usage: read [-link <idx>] <reg>")
	}

	reg, err := parseU32(a[0])
	if err != nil {
		return w.WriteLine(fmt.Sprintf("Invalid register %s: %s", a[0], err))
	}

	v, err := link.ReadRegister(reg)
	if err != nil {
		_ = w.WriteLine(fmt.Sprintf("%#x: %s", reg, err))
		return err
	}

	return w.WriteLine(fmt.Sprintf("%#x = 0x%08x", reg, v))
}

func sshWriteRegister(host *Host, fs any, a []string, w sshd.StringWriter) error {
	link, err := flagLink(host, fs, w)
	if err != nil {
		return err
	}

	if len(a) != 2 {
		return w.WriteLine("Usage: write [-link <idx>] <reg> <value>")
	}

	reg, err := parseU32(a[0])
	if err != nil {
		return w.WriteLine(fmt.Sprintf("Invalid register %s: %s", a[0], err))
	}

	v, err := parseU32(a[1])
	if err != nil {
		return w.WriteLine(fmt.Sprintf("Invalid value %s: %s", a[1], err))
	}

	if err := link.WriteRegister(reg, v); err != nil {
		_ = w.WriteLine(fmt.Sprintf("%#x: %s", reg, err))
		return err
	}

	return w.WriteLine(fmt.Sprintf("%#x <- 0x%08x", reg, v))
}

func sshStatus(host *Host, fs any, w sshd.StringWriter) error {
	link, err := flagLink(host, fs, w)
	if err != nil {
		return err
	}

	if err := link.CheckStatus(); err != nil {
		_ = w.WriteLine(fmt.Sprintf("%s: %s", link.Name(), err))
		return err
	}

	st, _ := link.Status()
	f := fs.(*sshPrintFlags)
	if f.Json || f.Pretty {
		return writeJson(w, st, f.Pretty)
	}

	return w.WriteLine(fmt.Sprintf("%s: crc_errors=%d reverse_link_request=%d capability_change=%d graphics_busy=%#x",
		link.Name(), st.CRCErrorCount, st.ReverseLinkRequest, st.CapabilityChange, st.GraphicsBusyFlags))
}

func sshCaps(host *Host, fs any, w sshd.StringWriter) error {
	link, err := flagLink(host, fs, w)
	if err != nil {
		return err
	}

	caps, ok := link.Capabilities()
	if !ok {
		return w.WriteLine(link.Name() + ": no capabilities received")
	}

	f := fs.(*sshPrintFlags)
	if f.Json || f.Pretty {
		return writeJson(w, caps, f.Pretty)
	}

	return w.WriteLine(fmt.Sprintf("%s: %s %dx%d protocol=%d", link.Name(), caps.ClientName(), caps.BitmapWidth, caps.BitmapHeight, caps.ProtocolVersion))
}

func writeJson(w sshd.StringWriter, v any, pretty bool) error {
	js := json.NewEncoder(w.GetWriter())
	if pretty {
		js.SetIndent("", "    ")
	}
	return js.Encode(v)
}

func sshStartCpuProfile(_ any, a []string, w sshd.StringWriter) error {
	if len(a) == 0 {
		return w.WriteLine("No path to write profile provided")
	}

	file, err := os.Create(a[0])
	if err != nil {
		return w.WriteLine(fmt.Sprintf("Unable to create profile file: %s", err))
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		return w.WriteLine(fmt.Sprintf("Unable to start cpu profile: %s", err))
	}

	return w.WriteLine(fmt.Sprintf("Started cpu profile, issue stop-cpu-profile to write the output to %s", a[0]))
}

func sshLogLevel(l *logrus.Logger, a []string, w sshd.StringWriter) error {
	if len(a) == 0 {
		return w.WriteLine(fmt.Sprintf("Log level is: %s", l.Level))
	}

	level, err := logrus.ParseLevel(a[0])
	if err != nil {
		return w.WriteLine(fmt.Sprintf("Unknown log level %s. Possible log levels: %s", a, logrus.AllLevels))
	}

	l.SetLevel(level)
	return w.WriteLine(fmt.Sprintf("Log level is: %s", l.Level))
}
