package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/mddilink/mddi"
	"github.com/mddilink/mddi/config"
	"github.com/mddilink/mddi/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	script := flag.String("e", "", "Attach, run the ; separated commands and exit")
	scriptFile := flag.String("f", "", "Attach, run the commands in the file and exit. - reads stdin")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	if *printUsage {
		flag.Usage()
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("-config flag must be set")
		flag.Usage()
		os.Exit(1)
	}

	l := logrus.New()
	l.Out = os.Stdout
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		l.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	}

	c := config.NewC(l)
	err := c.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %s", err)
		os.Exit(1)
	}

	ctrl, err := mddi.Main(c, *configTest, Build, l, nil)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	if *configTest {
		os.Exit(0)
	}

	if err := ctrl.Start(); err != nil {
		util.LogWithContextIfNeeded("Some controllers failed to attach", err, l)
	}

	if *script != "" || *scriptFile != "" {
		os.Exit(runScript(l, ctrl, *script, *scriptFile))
	}

	notifyReady(l)
	ctrl.ShutdownBlock()
	notifyStopping(l)
	os.Exit(0)
}

func runScript(l *logrus.Logger, ctrl *mddi.Control, script, scriptFile string) int {
	defer ctrl.Stop()

	var r io.Reader = strings.NewReader(script)
	if scriptFile == "-" {
		r = os.Stdin
	} else if scriptFile != "" {
		f, err := os.Open(scriptFile)
		if err != nil {
			l.WithError(err).Error("Failed to open script")
			return 1
		}
		defer f.Close()
		r = f
	}

	if err := ctrl.RunScript(r, os.Stdout); err != nil {
		l.WithError(err).Error("Script failed")
		return 1
	}
	return 0
}
