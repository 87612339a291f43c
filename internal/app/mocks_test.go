package app

import (
	"context"

	"github.com/stretchr/testify/mock"

	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(path string) (*config.Config, error) {
	args := m.Called(path)
	if cfg, ok := args.Get(0).(*config.Config); ok {
		return cfg, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDNS struct {
	mock.Mock
}

func (m *mockDNS) Update(ctx context.Context, cfg *config.Config) (string, error) {
	args := m.Called(ctx, cfg)
	return args.String(0), args.Error(1)
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Pull(ctx context.Context, ws *config.Workspace) error {
	return m.Called(ctx, ws).Error(0)
}

func (m *mockSyncer) Push(ctx context.Context, ws *config.Workspace) error {
	return m.Called(ctx, ws).Error(0)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Start(ctx context.Context, ws *config.Workspace) (runtime.ServiceHandle, error) {
	args := m.Called(ctx, ws)
	if h, ok := args.Get(0).(runtime.ServiceHandle); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockHandle struct {
	mock.Mock
}

func (m *mockHandle) ID() string {
	return "pid 4242"
}

func (m *mockHandle) Wait() (runtime.ExitStatus, error) {
	args := m.Called()
	return args.Get(0).(runtime.ExitStatus), args.Error(1)
}
