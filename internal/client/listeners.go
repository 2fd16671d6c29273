package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/portmapper/pcpclient/internal/wire"
)

// runListener is a long-lived goroutine that reads PCP responses off one of
// the service's sockets and posts decoded ones to the input channel. Both
// the unicast and multicast sockets run one of these; name distinguishes
// them in logs and metrics.
func (s *Service) runListener(name string, read func([]byte) (int, net.Addr, error)) error {
	s.log.Debug("client: listener started", "listener", name)
	buf := make([]byte, wire.MaxPacketSize)

	var warnMu sync.Mutex
	var warnLast time.Time
	const warnEvery = 5 * time.Second

	for {
		select {
		case <-s.ctx.Done():
			return nil
		default:
		}

		n, _, err := read(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				s.log.Debug("client: listener socket closed; exiting", "listener", name)
				return nil
			}

			now := time.Now()
			warnMu.Lock()
			if warnLast.IsZero() || now.Sub(warnLast) >= warnEvery {
				warnLast = now
				warnMu.Unlock()
				s.log.Warn("client: listener read error", "listener", name, "error", err)
			} else {
				warnMu.Unlock()
			}

			if isFatalNetErr(err) {
				return fmt.Errorf("client: fatal network error on %s listener: %w", name, err)
			}
			continue
		}

		receivedAt := s.clock.Now()
		resp, err := wire.DecodeResponse(buf[:n])
		if err != nil {
			metricDecodeErrors.WithLabelValues(name).Inc()
			s.log.Debug("client: failed to decode response", "listener", name, "error", err)
			continue
		}

		select {
		case s.input <- serverResponseEvent{resp: resp, receivedAt: receivedAt}:
		case <-s.ctx.Done():
			return nil
		}
	}
}

// isFatalNetErr reports whether err signals the underlying socket is never
// going to work again, as opposed to a transient read failure worth
// retrying.
func isFatalNetErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var se syscall.Errno
	if errors.As(err, &se) {
		switch se {
		case syscall.EBADF, syscall.ENETDOWN, syscall.ENODEV, syscall.ENXIO:
			return true
		}
	}
	var oe *net.OpError
	if errors.As(err, &oe) && !oe.Timeout() && !oe.Temporary() {
		return true
	}
	return false
}
