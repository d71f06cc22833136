//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// linuxInputEvent mirrors the kernel's input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type linuxInputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// evdevButtonSource reads button edges from Linux input devices using epoll:
// one goroutine for all devices, woken by the kernel only when events are
// available.
type evdevButtonSource struct {
	devices []string
	deb     *buttonDebouncer
	logger  *slog.Logger
}

func newHardwareButtonSource(devices []string, deb *buttonDebouncer, logger *slog.Logger) (ButtonSource, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no input devices configured")
	}
	return &evdevButtonSource{devices: devices, deb: deb, logger: logger}, nil
}

func (s *evdevButtonSource) Run(ctx context.Context) error {
	files := make([]*os.File, 0, len(s.devices))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, dev := range s.devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", dev, err)
		}
		files = append(files, f)
		s.logger.Info("input device opened", "device", dev)
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File)
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	// Reusable buffers
	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	evSize := binary.Size(linuxInputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Bounded wait so context cancellation is noticed promptly.
		n, err := unix.EpollWait(epfd, epollEvents, 500)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			reader.Reset(buf)
			var ev linuxInputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				// Skip malformed events
				continue
			}
			s.feed(ev)
		}
	}
}

func (s *evdevButtonSource) feed(ev linuxInputEvent) {
	if ev.Type != EV_KEY {
		return
	}
	id, ok := buttonKeymap[ev.Code]
	if !ok {
		return
	}

	at := time.Unix(ev.Sec, ev.Usec*1000)
	switch ev.Value {
	case evValuePress:
		s.deb.RawEdge(id, true, at)
	case evValueRelease:
		s.deb.RawEdge(id, false, at)
	case evValueRepeat:
		// Auto-repeat is synthesized downstream where needed; raw repeats
		// would defeat the debouncer.
	}
}
