package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leftmike/pgslru/storage/pagestore"
)

var ErrServerClosed = errors.New("server: closed")

// Handler serves one interactive session, reading commands from r and writing
// results to w.
type Handler func(st *pagestore.Store, r io.Reader, w io.Writer) error

type Server struct {
	Store *pagestore.Store
	// Handler serves SSH sessions; repl.Repl when nil.
	Handler Handler

	mutex      sync.Mutex
	listeners  []net.Listener
	activeConn map[io.Closer]struct{}
	connCount  int32
	shutdown   bool
	closed     bool
}

func (svr *Server) addListener(l net.Listener) bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.shutdown {
		return false
	}
	svr.listeners = append(svr.listeners, l)
	return true
}

func (svr *Server) trackConn(conn io.Closer, add bool) bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.closed {
		return false
	}
	if svr.activeConn == nil {
		svr.activeConn = map[io.Closer]struct{}{}
	}
	if add {
		svr.activeConn[conn] = struct{}{}
	} else {
		delete(svr.activeConn, conn)
	}
	return true
}

func (svr *Server) closeListeners() error {
	var err error
	if !svr.shutdown {
		for _, l := range svr.listeners {
			lerr := l.Close()
			if err == nil {
				err = lerr
			}
		}
		svr.shutdown = true
	}
	return err
}

// Close stops listening and closes every active connection.
func (svr *Server) Close() error {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.closed {
		return nil
	}
	svr.closed = true

	err := svr.closeListeners()
	for conn := range svr.activeConn {
		conn.Close()
		delete(svr.activeConn, conn)
	}
	return err
}

// Shutdown stops listening and waits for the active connections to finish or
// for ctx to be done.
func (svr *Server) Shutdown(ctx context.Context) error {
	svr.mutex.Lock()
	if svr.closed {
		svr.mutex.Unlock()
		return nil
	}
	err := svr.closeListeners()
	svr.mutex.Unlock()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := int32(-1)
	for {
		cc := atomic.LoadInt32(&svr.connCount)
		if cc == 0 {
			break
		}
		if cc != last {
			p := ""
			if cc > 1 {
				p = "s"
			}
			fmt.Printf("%d active connection%s\n", cc, p)
			last = cc
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return err
}
