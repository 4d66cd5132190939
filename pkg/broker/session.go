package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
)

// Session performs the real remote operations for one connected channel.
// The production implementation runs over SSH+SFTP; tests use fakes so the
// protocol handling can be exercised without a live host.
type Session interface {
	WorkingDir(ctx context.Context) (string, error)
	ListDir(ctx context.Context, path string) ([]models.Entry, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path string, content string) error

	// Execute runs a command, streaming stdout/stderr chunks through output
	// as they are produced, and returns the exit code on completion.
	Execute(ctx context.Context, command string, output func(kind models.OutputKind, data string)) (int, error)

	Close() error
}

// Dialer opens a Session for the given credentials.
type Dialer func(ctx context.Context, creds models.Credentials) (Session, error)

// DialSSH is the production dialer: TCP + SSH handshake + SFTP subsystem.
func DialSSH(ctx context.Context, creds models.Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	if creds.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(creds.Password))
	}
	if strings.TrimSpace(creds.PrivateKey) != "" {
		signer, err := ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		if err != nil {
			return nil, pkgerrors.Wrap(err, "parse private key")
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	port := creds.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(creds.Host, fmt.Sprintf("%d", port))
	dialer := &net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "dial ssh tcp")
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, authError{pkgerrors.Wrap(err, "ssh handshake")}
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, pkgerrors.Wrap(err, "create sftp client")
	}

	return &sshSession{ssh: sshClient, sftp: sftpClient}, nil
}

// authError marks a connect-phase rejection so it maps to the auth-failed
// wire code rather than a generic failure.
type authError struct{ err error }

func (e authError) Error() string { return e.err.Error() }
func (e authError) Unwrap() error { return e.err }

type sshSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sshSession) WorkingDir(ctx context.Context) (string, error) {
	_ = ctx
	wd, err := s.sftp.Getwd()
	if err != nil || strings.TrimSpace(wd) == "" {
		return "/", nil
	}
	wd = filepath.ToSlash(wd)
	if !strings.HasPrefix(wd, "/") {
		return "/", nil
	}
	return wd, nil
}

func (s *sshSession) ListDir(ctx context.Context, p string) ([]models.Entry, error) {
	_ = ctx
	p = normalizeRemotePath(p)
	infos, err := s.sftp.ReadDir(p)
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, models.Entry{
			Name:    name,
			Path:    joinRemote(p, name),
			IsFile:  !fi.IsDir(),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return entries, nil
}

func (s *sshSession) ReadFile(ctx context.Context, p string) (string, error) {
	_ = ctx
	f, err := s.sftp.Open(normalizeRemotePath(p))
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *sshSession) WriteFile(ctx context.Context, p string, content string) error {
	_ = ctx
	f, err := s.sftp.OpenFile(normalizeRemotePath(p), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(content)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *sshSession) Execute(ctx context.Context, command string, output func(kind models.OutputKind, data string)) (int, error) {
	sess, err := s.ssh.NewSession()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "open exec session")
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "stdout pipe")
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "stderr pipe")
	}

	if err := sess.Start(command); err != nil {
		return 0, pkgerrors.Wrap(err, "start command")
	}

	stdoutDone := pump(stdout, models.OutputStdout, output)
	stderrDone := pump(stderr, models.OutputStderr, output)

	// Drain both streams before reporting completion so no chunk trails the
	// final reply.
	<-stdoutDone
	<-stderrDone

	err = sess.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return 0, pkgerrors.Wrap(err, "wait for command")
}

func pump(r io.Reader, kind models.OutputKind, output func(kind models.OutputKind, data string)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		reader := bufio.NewReader(r)
		buf := make([]byte, 4096)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				output(kind, string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()
	return done
}

func (s *sshSession) Close() error {
	if s.sftp != nil {
		_ = s.sftp.Close()
	}
	if s.ssh != nil {
		return s.ssh.Close()
	}
	return nil
}

var _ Session = (*sshSession)(nil)

// wireCode classifies a session failure into a wire error code.
func wireCode(err error) string {
	var auth authError
	if errors.As(err, &auth) {
		return fserr.CodeAuthFailed
	}
	if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return fserr.CodeNotFound
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not a directory") {
		return fserr.CodeNotADirectory
	}
	if strings.Contains(msg, "no such file") {
		return fserr.CodeNotFound
	}
	return fserr.CodeIO
}

func normalizeRemotePath(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return "/"
	}
	return p
}

// joinRemote joins a directory and a base name with a single '/' separator.
func joinRemote(dir string, base string) string {
	if dir == "" {
		return "/" + strings.TrimPrefix(base, "/")
	}
	if strings.HasSuffix(dir, "/") {
		return dir + strings.TrimPrefix(base, "/")
	}
	return dir + "/" + strings.TrimPrefix(base, "/")
}
