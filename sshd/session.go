package sshd

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

type session struct {
	l        *logrus.Entry
	c        *ssh.ServerConn
	term     *term.Terminal
	commands *Commands
	prompt   string

	closeOnce sync.Once
	exitChan  chan struct{}
}

func newSession(commands *Commands, conn *ssh.ServerConn, chans <-chan ssh.NewChannel, prompt string, l *logrus.Entry) *session {
	s := &session{
		commands: commands.clone(),
		l:        l,
		c:        conn,
		prompt:   prompt,
		exitChan: make(chan struct{}),
	}

	s.commands.Register(&Command{
		Name:             "logout",
		ShortDescription: "Ends the current session",
		Callback: func(any, []string, StringWriter) error {
			s.Close()
			return nil
		},
	})

	go s.handleChannels(chans)
	return s
}

func (s *session) handleChannels(chans <-chan ssh.NewChannel) {
	for nc := range chans {
		if nc.ChannelType() != "session" {
			s.l.WithField("sshChannelType", nc.ChannelType()).Error("unknown channel type")
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := nc.Accept()
		if err != nil {
			s.l.WithError(err).Warn("could not accept channel")
			continue
		}

		go s.handleRequests(requests, channel)
	}
}

func (s *session) handleRequests(in <-chan *ssh.Request, channel ssh.Channel) {
	for req := range in {
		var err error
		switch req.Type {
		case "shell":
			if s.term == nil {
				s.term = s.createTerm(channel)
				err = req.Reply(true, nil)
			} else {
				err = req.Reply(false, nil)
			}

		case "pty-req", "window-change":
			err = req.Reply(true, nil)

		case "exec":
			var payload struct{ Value string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}

			_ = req.Reply(true, nil)
			var status struct{ Status uint32 }
			if err := s.commands.Dispatch(payload.Value, NewStringWriter(channel)); err != nil {
				s.l.WithError(err).WithField("command", payload.Value).Info("Command failed")
				status.Status = 1
			}

			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(status))
			_ = channel.Close()
			return

		default:
			s.l.WithField("sshRequest", req.Type).Debug("Rejected unknown request")
			err = req.Reply(false, nil)
		}

		if err != nil {
			s.l.WithError(err).Info("Error handling ssh session requests")
			s.Close()
			return
		}
	}
}

func (s *session) createTerm(channel ssh.Channel) *term.Terminal {
	t := term.NewTerminal(channel, s.c.User()+"@"+s.prompt+" > ")
	t.AutoCompleteCallback = func(line string, pos int, key rune) (string, int, bool) {
		if key != '\t' {
			return "", 0, false
		}

		names := s.commands.Match(line)
		if len(names) == 1 {
			return names[0] + " ", len(names[0]) + 1, true
		}

		_, _ = t.Write([]byte(strings.Join(names, "\n") + "\n\n"))
		return "", 0, false
	}

	go s.handleInput()
	return t
}

func (s *session) handleInput() {
	defer s.Close()
	w := NewStringWriter(s.term)
	for {
		line, err := s.term.ReadLine()
		if err != nil {
			return
		}

		if err := s.commands.Dispatch(line, w); err != nil {
			s.l.WithError(err).WithField("command", line).Debug("Command failed")
		}
	}
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		_ = s.c.Close()
		close(s.exitChan)
	})
}
