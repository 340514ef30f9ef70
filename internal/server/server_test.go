package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-weaver/kernel/internal/config"
	"github.com/nexus-weaver/kernel/internal/workload"
)

type fakeHandler struct{ healthErr error }

func (f *fakeHandler) Health(context.Context) (string, error) { return "dev", f.healthErr }
func (f *fakeHandler) Start(context.Context, workload.Spec) (workload.ID, error) {
	return "", nil
}
func (f *fakeHandler) Stop(context.Context, workload.ID) error { return nil }
func (f *fakeHandler) Get(context.Context, workload.ID) (workload.Snapshot, error) {
	return workload.Snapshot{}, nil
}
func (f *fakeHandler) List(context.Context) ([]workload.Snapshot, error) { return nil, nil }

func TestNewFailsOnMissingCertFiles(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.TLS.CertFile = filepath.Join(dir, "no-such-cert.pem")
	cfg.TLS.KeyFile = filepath.Join(dir, "no-such-key.pem")
	cfg.TLS.CACertFile = filepath.Join(dir, "no-such-ca.pem")

	_, err := New(cfg, &fakeHandler{}, nil)
	require.Error(t, err)
}

func TestHandlerReturnsWiredHandler(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	srv := &Server{handler: h}
	assert.Same(t, h, srv.Handler())
}
