/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package proxy

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/x1a0/bcproxy/internal/config"
	"github.com/x1a0/bcproxy/internal/log"
)

// fakeUpstream listens once, verifies the activation handshake, then
// writes bcBody to the accepted connection and closes it.
func fakeUpstream(t *testing.T, bcBody []byte, activation []byte) (addr string, done chan struct{}) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done = make(chan struct{})
	go func() {
		defer close(done)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer l.Close()

		got := make([]byte, len(activation))
		if _, err := readFull(conn, got); err != nil {
			t.Errorf("reading activation: %v", err)
			return
		}
		if !bytes.Equal(got, activation) {
			t.Errorf("activation = %x, want %x", got, activation)
		}
		conn.Write(bcBody)
	}()
	return l.Addr().String(), done
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestProxyHandleActivationAndTranslation(t *testing.T) {
	activation := []byte{0x1b, 0x62, 0x63, 0x20, 0x31, 0x0a}
	bcBody := []byte("\x1b<10chan_sales\x1b|Test output\n\x1b>10")
	addr, upDone := fakeUpstream(t, bcBody, activation)

	cfg := &config.Config{
		UpstreamScheme:  config.SchemeTCP,
		UpstreamAddress: addr,
		Activation:      activation,
		MaxTagDepth:     32,
		MaxTagBytes:     1 << 20,
	}
	s := New(cfg, log.NewDiscard(), nil)

	down, client := net.Pipe()
	handleDone := make(chan struct{})
	go func() {
		defer close(handleDone)
		s.handle(down)
	}()

	want := []byte("\xcf\x80chan_sales: Test output\n")
	got := make([]byte, len(want))
	if _, err := readFull(client, got); err != nil {
		t.Fatalf("reading translated output: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("translated = %q, want %q", got, want)
	}

	client.Close()
	<-upDone

	select {
	case <-handleDone:
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not return after client close")
	}
}
