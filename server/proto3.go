package server

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync/atomic"

	pgproto3 "github.com/jackc/pgproto3/v2"
	"github.com/lib/pq/oid"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pgslru/repl"
)

const (
	serverVersion = "12.0 (pgslru)"
)

type Proto3Config struct {
	Address string
}

func (svr *Server) ListenAndServeProto3(p3Cfg Proto3Config) error {
	l, err := net.Listen("tcp", p3Cfg.Address)
	if err != nil {
		return err
	}
	if !svr.addListener(l) {
		l.Close()
		return ErrServerClosed
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			svr.mutex.Lock()
			if svr.shutdown {
				err = ErrServerClosed
			}
			svr.mutex.Unlock()
			log.WithField("error", err.Error()).Error("proto3 accept")
			return err
		}

		entry := log.WithFields(log.Fields{
			"addr": conn.RemoteAddr().String(),
		})
		entry.Info("proto3 connected")

		go svr.handleProto3Conn(conn, entry)
	}
}

func (svr *Server) handleProto3Conn(conn net.Conn, entry *log.Entry) {
	atomic.AddInt32(&svr.connCount, 1)
	defer atomic.AddInt32(&svr.connCount, -1)

	defer func() {
		entry.Info("proto3 disconnected")
	}()

	if !svr.trackConn(conn, true) {
		conn.Close()
		return
	}

	defer func() {
		if svr.trackConn(conn, false) {
			conn.Close()
		}
	}()

	be := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	var started bool
	for !started {
		msg, err := be.ReceiveStartupMessage()
		if err != nil {
			entry.Errorf("receive startup message: %s", err)
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.StartupMessage:
			entry.Infof("protocol version: %d", msg.ProtocolVersion)
			for nam, val := range msg.Parameters {
				entry.Debugf("parameter: %s = %s", nam, val)
			}

			buf := (&pgproto3.AuthenticationOk{}).Encode(nil)
			buf = (&pgproto3.ParameterStatus{Name: "server_version", Value: serverVersion}).
				Encode(buf)
			buf = (&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"}).
				Encode(buf)
			_, err := conn.Write(buf)
			if err != nil {
				entry.Errorf("send authentication ok: %s", err)
				return
			}
			started = true
		case *pgproto3.SSLRequest:
			_, err := conn.Write([]byte("N"))
			if err != nil {
				entry.Errorf("send deny SSL request: %s", err)
				return
			}
		default:
			entry.Errorf("unknown startup message: %v", msg)
			return
		}
	}

	svr.handleProto3Session(be, conn, entry)
}

func (svr *Server) handleProto3Session(be *pgproto3.Backend, conn net.Conn, entry *log.Entry) {
	for {
		_, err := conn.Write((&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(nil))
		if err != nil {
			entry.Errorf("send ready for query: %s", err)
			return
		}

		msg, err := be.Receive()
		if err != nil {
			if err != io.EOF {
				entry.Errorf("receive: %s", err)
			}
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			svr.proto3Query(conn, msg, entry)
		case *pgproto3.Terminate:
			return
		default:
			buf, _ := json.Marshal(msg)
			entry.Errorf("backend unexpected message: %s", string(buf))
			proto3ErrorResponse(conn, "0A000", "only the simple query protocol is supported",
				entry)
		}
	}
}

// proto3Query evaluates each command of a simple query in turn and stops at the
// first error.
func (svr *Server) proto3Query(conn net.Conn, msg *pgproto3.Query, entry *log.Entry) {
	var cnt int
	for _, line := range strings.Split(msg.String, ";") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cnt += 1

		entry.WithField("command", line).Debug("proto3 query")
		res, err := repl.Eval(svr.Store, line)
		if err != nil {
			proto3ErrorResponse(conn, "42601", err.Error(), entry)
			return
		}
		err = proto3Result(conn, res)
		if err != nil {
			entry.Errorf("send result: %s", err)
			return
		}
	}

	if cnt == 0 {
		_, err := conn.Write((&pgproto3.EmptyQueryResponse{}).Encode(nil))
		if err != nil {
			entry.Errorf("send empty query response: %s", err)
		}
	}
}

func proto3Result(conn net.Conn, res *repl.Result) error {
	var buf []byte
	if res.Columns != nil {
		var fields []pgproto3.FieldDescription
		for _, col := range res.Columns {
			fields = append(fields,
				pgproto3.FieldDescription{
					Name:                 []byte(col),
					TableOID:             0,
					TableAttributeNumber: 0,
					DataTypeOID:          uint32(oid.T_text),
					DataTypeSize:         -1,
					TypeModifier:         -1,
					Format:               0, // Text format; binary format = 1
				})
		}
		buf = (&pgproto3.RowDescription{Fields: fields}).Encode(buf)

		for _, row := range res.Rows {
			values := make([][]byte, len(row))
			for vdx, v := range row {
				values[vdx] = []byte(v)
			}
			buf = (&pgproto3.DataRow{Values: values}).Encode(buf)
		}
	}

	buf = (&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)}).Encode(buf)
	_, err := conn.Write(buf)
	return err
}

func proto3ErrorResponse(conn net.Conn, code, msg string, entry *log.Entry) {
	_, err := conn.Write((&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     code,
		Message:  msg,
	}).Encode(nil))
	if err != nil {
		entry.Errorf("send error response: %s", err)
	}
}
