package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Listen opens a listener for addr, one of unix:///path/to/socket, fd://N
// for an inherited descriptor, or a TCP host:port with an optional tcp://
// prefix.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	scheme, rest, found := strings.Cut(addr, "://")
	if !found {
		scheme, rest = "tcp", addr
	}

	var lc net.ListenConfig
	switch scheme {
	case "tcp":
		return lc.Listen(ctx, "tcp", rest)
	case "unix":
		// A stale socket from a previous run would make the bind fail.
		if err := os.Remove(rest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(rest), 0o755); err != nil {
			return nil, err
		}
		return lc.Listen(ctx, "unix", rest)
	case "fd":
		fd, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid file descriptor %q: %w", rest, err)
		}
		return net.FileListener(os.NewFile(uintptr(fd), "listener"))
	default:
		return nil, fmt.Errorf("unsupported listen address %q", addr)
	}
}
