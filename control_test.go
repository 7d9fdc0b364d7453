package mddi

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/mddilink/mddi/hw"
	"github.com/mddilink/mddi/sim"
	"github.com/mddilink/mddi/sshd"
	"github.com/mddilink/mddi/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestControl(t *testing.T, raw string) *Control {
	t.Helper()
	c := loadTestConfig(t, raw)
	ctl, err := Main(c, false, "1.2.3", test.NewLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(ctl.Stop)
	return ctl
}

func TestControl_Start(t *testing.T) {
	ctl := startTestControl(t, fmt.Sprintf(testConfig, t.Name(), t.Name()))
	require.NoError(t, ctl.Start())

	assert.Equal(t, []int{0, 1}, ctl.Host().Indexes())
	clients := ctl.Clients()
	require.Len(t, clients, 2)
	assert.Equal(t, t.Name()+"_a", clients[0].Link.Name())
	assert.Equal(t, t.Name()+"_b", clients[1].Link.Name())
	assert.Equal(t, "mddi_c_d263_8722", clients[0].Name)

	link, err := ctl.Host().Link(1)
	require.NoError(t, err)
	require.NoError(t, link.AddPanel(&PanelOps{}))
	panels := ctl.Panels()
	require.Len(t, panels, 1)
	assert.Equal(t, "mddi_panel", panels[0].Name)

	v, err := link.ReadRegister(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)

	ctl.Stop()
	// Stop is idempotent
	ctl.Stop()
	assert.Error(t, ctl.Context().Err())
}

func TestControl_StartAbsent(t *testing.T) {
	ctl := startTestControl(t, fmt.Sprintf(`
controllers:
  - index: 0
    name: %s
hardware:
  sim:
    absent: true
timeouts:
  caps: 5ms
  powerdown_settle: 1ms
`, t.Name()))

	require.NoError(t, ctl.Start())
	assert.Empty(t, ctl.Clients())
}

func TestControl_StartUnsupported(t *testing.T) {
	ctl := startTestControl(t, fmt.Sprintf(`
controllers:
  - index: 0
    name: %s
hardware:
  sim:
    core_version: 0x10
`, t.Name()))

	err := ctl.Start()
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Empty(t, ctl.Clients())
}

func TestControl_Exec(t *testing.T) {
	ctl := startTestControl(t, fmt.Sprintf(testConfig, t.Name(), t.Name()))
	require.NoError(t, ctl.Start())

	run := func(line string) (string, error) {
		var buf bytes.Buffer
		err := ctl.Exec(line, &buf)
		return buf.String(), err
	}

	out, err := run("read 0x10")
	require.NoError(t, err)
	assert.Equal(t, "0x10 = 0x00000005\n", out)

	out, err = run("write -link 1 0x20 0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0x20 <- 0x00000abc\n", out)

	out, err = run("read -link 1 32")
	require.NoError(t, err)
	assert.Equal(t, "0x20 = 0x00000abc\n", out)

	out, err = run("read -link 7 0x10")
	assert.ErrorIs(t, err, ErrUnknownController)
	assert.Contains(t, out, "unknown controller")

	out, err = run("read zz")
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid register zz")

	out, err = run("list-links")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0 %s_a version=0x30 client=mddi_c_d263_8722\n1 %s_b version=0x30 client=mddi_c_d263_8722\n", t.Name(), t.Name()), out)

	out, err = run("list-clients")
	require.NoError(t, err)
	assert.Contains(t, out, t.Name()+"_a: mddi_c_d263_8722 (320x480)")

	out, err = run("caps")
	require.NoError(t, err)
	assert.Contains(t, out, "mddi_c_d263_8722 320x480")

	out, err = run("caps -json")
	require.NoError(t, err)
	assert.Contains(t, out, `"BitmapWidth":320`)

	out, err = run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "crc_errors=0")

	out, err = run("hibernate on")
	require.NoError(t, err)
	assert.Contains(t, out, "auto hibernate on")

	out, err = run("hibernate maybe")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage: hibernate")

	out, err = run("version")
	require.NoError(t, err)
	assert.Equal(t, "version=1.2.3\n", out)

	out, err = run("log-level")
	require.NoError(t, err)
	assert.Contains(t, out, "Log level is:")

	_, err = run("suspend -link 1")
	require.NoError(t, err)
	_, err = run("resume -link 1")
	require.NoError(t, err)
	out, err = run("read -link 1 0x20")
	require.NoError(t, err)
	assert.Equal(t, "0x20 = 0x00000abc\n", out)

	_, err = run("frobnicate")
	assert.ErrorIs(t, err, sshd.ErrUnknownCommand)
}

func TestControl_RunScript(t *testing.T) {
	ctl := startTestControl(t, fmt.Sprintf(testConfig, t.Name(), t.Name()))
	require.NoError(t, ctl.Start())

	var buf bytes.Buffer
	script := "# setup\nwrite 0x30 7; read 0x30\n\n  read -link 1 0x10  \n"
	require.NoError(t, ctl.RunScript(strings.NewReader(script), &buf))
	assert.Equal(t, "0x30 <- 0x00000007\n0x30 = 0x00000007\n0x10 = 0x00000005\n", buf.String())

	buf.Reset()
	err := ctl.RunScript(strings.NewReader("read 0x10\nnope\nread 0x10\n"), &buf)
	assert.ErrorIs(t, err, ErrScriptFailed)
	assert.ErrorIs(t, err, sshd.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 1, strings.Count(buf.String(), "0x10 = "))
}

func TestControl_StopClosesControllers(t *testing.T) {
	c := loadTestConfig(t, fmt.Sprintf(testConfig, t.Name(), t.Name()))
	var opened []*closingController
	open := func(l *logrus.Logger, cc ControllerConfig) (hw.Controller, error) {
		ctrl := &closingController{Controller: sim.New(l)}
		opened = append(opened, ctrl)
		return ctrl, nil
	}

	ctl, err := Main(c, false, "1.2.3", test.NewLogger(), open)
	require.NoError(t, err)
	require.NoError(t, ctl.Start())
	require.Len(t, opened, 2)
	for _, ctrl := range opened {
		assert.Zero(t, ctrl.closed)
	}

	ctl.Stop()
	ctl.Stop()
	for _, ctrl := range opened {
		assert.Equal(t, 1, ctrl.closed)
	}
}
