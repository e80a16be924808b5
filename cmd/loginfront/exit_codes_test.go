package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	bolterrors "go.etcd.io/bbolt/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"explicit", withExitCode(ExitCodeConfigError, errors.New("bad")), ExitCodeConfigError},
		{"wrapped explicit", fmt.Errorf("serve: %w", withExitCode(ExitCodeUnhealthy, errors.New("down"))), ExitCodeUnhealthy},
		{"port in use", &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}, ExitCodePortConflict},
		{"bolt locked", fmt.Errorf("failed to open bolt database: %w", bolterrors.ErrTimeout), ExitCodeDBLocked},
		{"permission", &fs.PathError{Op: "mkdir", Path: "/root/x", Err: fs.ErrPermission}, ExitCodePermissionError},
		{"other", errors.New("boom"), ExitCodeGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestWithExitCodeNil(t *testing.T) {
	assert.NoError(t, withExitCode(ExitCodeConfigError, nil))
}

func TestExitCodeDescription(t *testing.T) {
	for _, code := range []int{ExitCodeSuccess, ExitCodeGeneralError, ExitCodePortConflict, ExitCodeDBLocked,
		ExitCodeConfigError, ExitCodePermissionError, ExitCodeUnhealthy} {
		assert.NotEqual(t, "Unknown error", exitCodeDescription(code), "code %d", code)
	}
	assert.Equal(t, "Unknown error", exitCodeDescription(42))
}
