package sftp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/backuptest"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
)

// server serves one in-memory filesystem to every session dialed to it.
type server struct {
	mu       sync.Mutex
	handlers sftp.Handlers
	dials    int
	conns    []net.Conn
	refuse   bool
}

func newServer() *server {
	return &server{handlers: sftp.InMemHandler()}
}

func (s *server) dial() (session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.refuse {
		return nil, errors.New("connection refused")
	}
	remote, local := net.Pipe()
	go sftp.NewRequestServer(remote, s.handlers).Serve()
	s.conns = append(s.conns, remote)
	client, err := sftp.NewClientPipe(local, local)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// drop severs every open session.
func (s *server) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *server) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func TestStorage(t *testing.T) {
	srv := newServer()
	backuptest.Run(t, newStorage(srv.dial, "backups/", zap.NewNop()))
}

func TestSessionIsReused(t *testing.T) {
	srv := newServer()
	s := newStorage(srv.dial, "backups", zap.NewNop())
	defer s.Close()
	p := backup.Profile{ID: uuid.New(), Name: "arena"}

	for range 3 {
		_, err := s.ListBackups(context.Background(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.dialCount())
}

func TestReconnectsAfterConnectionLoss(t *testing.T) {
	srv := newServer()
	s := newStorage(srv.dial, "backups", zap.NewNop())
	defer s.Close()
	p := backup.Profile{ID: uuid.New(), Name: "arena"}
	created := time.UnixMilli(1_700_000_000_000)

	stored, err := s.StoreBackup(context.Background(), p, backuptest.Snapshot(t, created, 128))
	require.NoError(t, err)
	assert.Equal(t, "backups/"+p.ID.String()+"/1700000000000.zip", stored.Key)

	srv.drop()
	backups, err := s.ListBackups(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []backup.Backup{stored}, backups)
	assert.Equal(t, 2, srv.dialCount())
}

func TestDialFailure(t *testing.T) {
	srv := newServer()
	srv.refuse = true
	s := newStorage(srv.dial, "backups", zap.NewNop())
	defer s.Close()

	_, err := s.ListBackups(context.Background(), backup.Profile{ID: uuid.New()})
	assert.ErrorContains(t, err, "connection refused")

	srv.mu.Lock()
	srv.refuse = false
	srv.mu.Unlock()
	_, err = s.ListBackups(context.Background(), backup.Profile{ID: uuid.New()})
	assert.NoError(t, err)
	assert.Equal(t, 2, srv.dialCount())
}

func TestAuthMethods(t *testing.T) {
	methods, err := authMethods(config.SFTPConfig{Password: "hunter2"})
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	_, err = authMethods(config.SFTPConfig{KeyFile: t.TempDir() + "/missing"})
	assert.ErrorContains(t, err, "read sftp key")
}

func TestHostKeyCallback(t *testing.T) {
	cb, err := hostKeyCallback(config.SFTPConfig{Host: "backup.example.org"})
	require.NoError(t, err)
	assert.NotNil(t, cb)

	_, err = hostKeyCallback(config.SFTPConfig{KnownHosts: t.TempDir() + "/known_hosts"})
	assert.ErrorContains(t, err, "load known hosts")
}

func TestUnreachableHost(t *testing.T) {
	s := New(config.SFTPConfig{Host: "127.0.0.1", Port: 1, Username: "backup", Password: "hunter2"}, zap.NewNop())
	require.NotNil(t, s)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.ListBackups(ctx, backup.Profile{ID: uuid.New()})
	assert.Error(t, err)
}

func TestMissingKeyFile(t *testing.T) {
	s := New(config.SFTPConfig{Host: "127.0.0.1", Port: 1, Username: "backup", KeyFile: t.TempDir() + "/missing"}, zap.NewNop())
	require.NotNil(t, s)
	defer s.Close()

	_, err := s.ListBackups(context.Background(), backup.Profile{ID: uuid.New()})
	assert.ErrorContains(t, err, "read sftp key")
}
