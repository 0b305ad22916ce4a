// dtfctl - a minimal line-oriented client for manual dtfd wire-protocol
// testing. Each line typed at stdin is sent as one request frame; the
// response status and body are printed to stdout.
//
// Usage:
//
//	dtfctl [flags]
//
// Flags:
//
//	-addr string   Server address (default "127.0.0.1:9001")
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "Server address")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dtfctl: connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to %s, type a command and press enter (PING, HELP, INFO, ...)\n", *addr)

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := sendRequest(conn, []byte(line)); err != nil {
			fmt.Fprintf(os.Stderr, "dtfctl: send: %v\n", err)
			return
		}
		ok, body, err := readResponse(conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dtfctl: read: %v\n", err)
			return
		}
		if ok {
			fmt.Printf("OK  %s\n", body)
		} else {
			fmt.Printf("ERR %s\n", body)
		}
	}
}

// sendRequest writes one request frame: a 4-byte big-endian length prefix
// followed by payload, matching internal/wire.Reader.ReadRequest's framing.
func sendRequest(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readResponse reads one response frame: a 1-byte status followed by an
// 8-byte big-endian length and that many bytes of body, matching
// internal/wire.Writer.writeResponse's framing.
func readResponse(r io.Reader) (ok bool, body string, err error) {
	var statusBuf [1]byte
	if _, err = io.ReadFull(r, statusBuf[:]); err != nil {
		return false, "", err
	}
	var lenBuf [8]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return false, "", err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if _, err = io.ReadFull(r, buf); err != nil {
		return false, "", err
	}
	return statusBuf[0] == 0x01, string(buf), nil
}
