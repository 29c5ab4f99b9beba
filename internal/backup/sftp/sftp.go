// Package sftp stores backups on a remote host over SFTP under
// <base path>/<world uuid>/<creation ms>.zip.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
)

const dialTimeout = 10 * time.Second

// session is an open SFTP connection.
type session interface {
	ReadDir(p string) ([]os.FileInfo, error)
	MkdirAll(p string) error
	Create(p string) (*sftp.File, error)
	Open(p string) (*sftp.File, error)
	Remove(p string) error
	Rename(oldname, newname string) error
	Getwd() (string, error)
	Close() error
}

type dialFunc func() (session, error)

var _ backup.Storage = (*Storage)(nil)

// Storage keeps one session open and dials again whenever the previous one
// failed a health check or broke during an operation.
type Storage struct {
	dial   dialFunc
	base   string
	logger *zap.Logger

	mu     sync.Mutex
	conn   session
	closed bool
}

// New connects to the configured host. Credentials and known hosts are read
// on every dial, so a bad key file or an unreachable host only fails
// operations until it is fixed.
func New(cfg config.SFTPConfig, logger *zap.Logger) *Storage {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if cfg.KnownHosts == "" {
		logger.Warn("sftp host key is not verified, set known_hosts to enable checking", zap.String("host", cfg.Host))
	}
	s := newStorage(func() (session, error) {
		cc, err := clientConfig(cfg)
		if err != nil {
			return nil, err
		}
		return dial(addr, cc)
	}, cfg.BasePath, logger)

	if err := s.connect(); err != nil {
		logger.Error("sftp backup storage is unavailable, retrying on the next operation", zap.String("host", addr), zap.Error(err))
	}
	return s
}

func clientConfig(cfg config.SFTPConfig) (*ssh.ClientConfig, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         dialTimeout,
	}, nil
}

func newStorage(dial dialFunc, base string, logger *zap.Logger) *Storage {
	if base == "" {
		base = "."
	}
	return &Storage{dial: dial, base: path.Clean(base), logger: logger}
}

type sshSession struct {
	*sftp.Client
	conn *ssh.Client
}

func (s sshSession) Close() error {
	err := s.Client.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func dial(addr string, cfg *ssh.ClientConfig) (session, error) {
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp session: %w", err)
	}
	return sshSession{Client: client, conn: conn}, nil
}

func authMethods(cfg config.SFTPConfig) ([]ssh.AuthMethod, error) {
	if cfg.KeyFile == "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}
	pem, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read sftp key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && cfg.Password != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.Password))
	}
	if err != nil {
		return nil, fmt.Errorf("parse sftp key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func hostKeyCallback(cfg config.SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

func (s *Storage) Name() string { return "sftp" }

// do runs fn with a live session. Errors other than remote status codes
// mean the connection is unusable, so it is dropped and the next call dials
// again.
func (s *Storage) do(fn func(session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStorageClosed
	}

	if s.conn != nil {
		if _, err := s.conn.Getwd(); err != nil {
			s.logger.Debug("sftp session lost", zap.Error(err))
			s.teardown()
		}
	}
	if s.conn == nil {
		conn, err := s.dial()
		if err != nil {
			return err
		}
		s.conn = conn
	}

	err := fn(s.conn)
	if err != nil && !isStatus(err) {
		s.teardown()
	}
	return err
}

// connect opens the session ahead of the first operation.
func (s *Storage) connect() error {
	return s.do(func(c session) error {
		_, err := c.Getwd()
		return err
	})
}

func (s *Storage) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Storage) dir(p backup.Profile) string { return path.Join(s.base, p.ID.String()) }

func (s *Storage) ListBackups(_ context.Context, p backup.Profile) ([]backup.Backup, error) {
	dir := s.dir(p)
	backups := make([]backup.Backup, 0)
	err := s.do(func(c session) error {
		infos, err := c.ReadDir(dir)
		if err != nil {
			if notExist(err) {
				return nil
			}
			return err
		}
		for _, info := range infos {
			if info.IsDir() {
				continue
			}
			ms, ok := backup.ParseFileName(info.Name())
			if !ok {
				continue
			}
			backups = append(backups, backup.Backup{Profile: p, CreationTime: ms, Key: path.Join(dir, info.Name())})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	backup.SortNewestFirst(backups)
	return backups, nil
}

func (s *Storage) StoreBackup(_ context.Context, p backup.Profile, snap backup.Snapshot) (backup.Backup, error) {
	src, err := os.Open(snap.Path)
	if err != nil {
		return backup.Backup{}, err
	}
	defer src.Close()

	dir := s.dir(p)
	key := path.Join(dir, backup.FileName(snap.Created))
	err = s.do(func(c session) error {
		if err := c.MkdirAll(dir); err != nil {
			return err
		}
		tmp := key + ".tmp"
		if err := upload(c, src, tmp); err != nil {
			_ = c.Remove(tmp)
			return err
		}
		if err := c.Remove(key); err != nil && !notExist(err) {
			return err
		}
		return c.Rename(tmp, key)
	})
	if err != nil {
		return backup.Backup{}, err
	}
	s.logger.Debug("uploaded backup", zap.String("path", key))
	return backup.Backup{Profile: p, CreationTime: snap.Created.UnixMilli(), Key: key}, nil
}

func upload(c session, src io.Reader, dst string) error {
	f, err := c.Create(dst)
	if err != nil {
		return err
	}
	if _, err := f.ReadFrom(src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DownloadBackup copies the remote file into a temporary file owned by the
// caller.
func (s *Storage) DownloadBackup(_ context.Context, b backup.Backup) (string, bool, error) {
	tmp, err := os.CreateTemp("", "backup-*.zip")
	if err != nil {
		return "", false, err
	}
	err = s.do(func(c session) error {
		f, err := c.Open(b.Key)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteTo(tmp)
		return err
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		if notExist(err) {
			return "", false, types.ErrBackupNotFound
		}
		return "", false, err
	}
	return tmp.Name(), true, nil
}

func (s *Storage) DeleteBackup(_ context.Context, b backup.Backup) error {
	return s.do(func(c session) error {
		if err := c.Remove(b.Key); err != nil && !notExist(err) {
			return err
		}
		return nil
	})
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.teardown()
	return nil
}

func notExist(err error) bool {
	var status *sftp.StatusError
	if errors.As(err, &status) {
		return status.FxCode() == sftp.ErrSSHFxNoSuchFile
	}
	return errors.Is(err, fs.ErrNotExist)
}

// isStatus reports whether err came from the remote end answering a request,
// as opposed to the connection failing.
func isStatus(err error) bool {
	var status *sftp.StatusError
	return errors.As(err, &status) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
