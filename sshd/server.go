package sshd

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const defaultHandshakeTimeout = 10 * time.Second

// SSHServer exposes a command table to authorized ssh users.
type SSHServer struct {
	config   *ssh.ServerConfig
	l        *logrus.Entry
	commands *Commands
	prompt   string

	// user -> marshaled authorized keys
	keysLock    sync.RWMutex
	trustedKeys map[string]map[string]bool

	listenerLock sync.Mutex
	listener     net.Listener

	// Locks the conns/counter to avoid concurrent map access
	connsLock sync.Mutex
	conns     map[int]*session
	counter   int
}

// NewSSHServer creates a server for commands. Nothing listens until Run is called.
func NewSSHServer(l *logrus.Entry, commands *Commands, prompt string) (*SSHServer, error) {
	if commands == nil {
		return nil, errors.New("no command table")
	}

	s := &SSHServer{
		trustedKeys: make(map[string]map[string]bool),
		l:           l,
		commands:    commands,
		prompt:      prompt,
		conns:       make(map[int]*session),
	}

	s.config = &ssh.ServerConfig{
		PublicKeyCallback: s.authenticate,
		ServerVersion:     "SSH-2.0-" + prompt,
	}

	return s, nil
}

func (s *SSHServer) authenticate(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
	fp := ssh.FingerprintSHA256(pubKey)

	s.keysLock.RLock()
	defer s.keysLock.RUnlock()
	tk, ok := s.trustedKeys[c.User()]
	if !ok {
		return nil, fmt.Errorf("unknown user %s", c.User())
	}

	if !tk[string(pubKey.Marshal())] {
		return nil, fmt.Errorf("unknown public key for %s (%s)", c.User(), fp)
	}

	return &ssh.Permissions{
		Extensions: map[string]string{
			"fp":   fp,
			"user": c.User(),
		},
	}, nil
}

func (s *SSHServer) SetHostKey(hostPrivateKey []byte) error {
	private, err := ssh.ParsePrivateKey(hostPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %s", err)
	}

	s.config.AddHostKey(private)
	return nil
}

func (s *SSHServer) ClearAuthorizedKeys() {
	s.keysLock.Lock()
	s.trustedKeys = make(map[string]map[string]bool)
	s.keysLock.Unlock()
}

// AddAuthorizedKey adds an ssh public key for a user
func (s *SSHServer) AddAuthorizedKey(user, pubKey string) error {
	pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubKey))
	if err != nil {
		return err
	}

	s.keysLock.Lock()
	tk, ok := s.trustedKeys[user]
	if !ok {
		tk = make(map[string]bool)
		s.trustedKeys[user] = tk
	}
	tk[string(pk.Marshal())] = true
	s.keysLock.Unlock()

	s.l.WithField("sshKey", pubKey).WithField("sshUser", user).Info("Authorized ssh key")
	return nil
}

// Run listens on addr and serves sessions until Stop is called.
func (s *SSHServer) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listenerLock.Lock()
	s.listener = ln
	s.listenerLock.Unlock()

	s.l.WithField("sshListener", addr).Info("SSH server is listening")
	s.serve(ln)
	s.closeSessions()
	s.l.Info("SSH server stopped listening")
	return nil
}

func (s *SSHServer) serve(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.l.WithError(err).Warn("Error in listener, shutting down")
			}
			return
		}

		go s.handleConn(c)
	}
}

func (s *SSHServer) handleConn(c net.Conn) {
	conn, chans, reqs, err := s.handshakeWithTimeout(c, defaultHandshakeTimeout)
	if err != nil {
		s.l.WithError(err).WithField("remoteAddress", c.RemoteAddr()).Warn("failed to handshake")
		return
	}

	l := s.l.WithField("sshUser", conn.User())
	l.WithField("remoteAddress", c.RemoteAddr()).
		WithField("sshFingerprint", conn.Permissions.Extensions["fp"]).
		Info("ssh user logged in")

	s.connsLock.Lock()
	sess := newSession(s.commands, conn, chans, s.prompt, l.WithField("subsystem", "sshd.session"))
	s.counter++
	id := s.counter
	s.conns[id] = sess
	s.connsLock.Unlock()

	go ssh.DiscardRequests(reqs)
	<-sess.exitChan
	s.l.WithField("id", id).Debug("closing conn")
	s.connsLock.Lock()
	delete(s.conns, id)
	s.connsLock.Unlock()
}

// handshakeWithTimeout closes c and gives up if the client has not completed
// the ssh handshake within timeout.
func (s *SSHServer) handshakeWithTimeout(c net.Conn, timeout time.Duration) (*ssh.ServerConn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  *ssh.ServerConn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		conn, chans, reqs, err := ssh.NewServerConn(c, s.config)
		done <- result{conn, chans, reqs, err}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			_ = c.Close()
			return nil, nil, nil, r.err
		}
		return r.conn, r.chans, r.reqs, nil
	case <-t.C:
		_ = c.Close()
		// Closing the conn unblocks the handshake goroutine.
		if r := <-done; r.conn != nil {
			_ = r.conn.Close()
		}
		return nil, nil, nil, errors.New("handshake timeout")
	}
}

// Stop closes the listener which ends every session.
func (s *SSHServer) Stop() {
	s.listenerLock.Lock()
	defer s.listenerLock.Unlock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.l.WithError(err).Warn("Failed to close the sshd listener")
		}
		s.listener = nil
	}
}

func (s *SSHServer) closeSessions() {
	s.connsLock.Lock()
	sessions := make([]*session, 0, len(s.conns))
	for _, c := range s.conns {
		sessions = append(sessions, c)
	}
	s.connsLock.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}

// SetCommands swaps the table new sessions are served from.
func (s *SSHServer) SetCommands(commands *Commands) {
	s.connsLock.Lock()
	s.commands = commands
	s.connsLock.Unlock()
}
