package zwave

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// fakeGateway is a TCP listener that speaks the size-prefixed framing.
type fakeGateway struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	g := &fakeGateway{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			g.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return g
}

func (g *fakeGateway) url() string {
	return "tcp://" + g.ln.Addr().String()
}

func (g *fakeGateway) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-g.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not accept a connection")
		return nil
	}
}

func writeFrame(t *testing.T, conn net.Conn, frame []byte) {
	t.Helper()
	env, err := EncodeEnvelope(frame)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	if _, err := conn.Write(env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func connectTestClient(t *testing.T, g *fakeGateway, strict bool) (*GatewayClient, net.Conn) {
	t.Helper()
	return connectWithReadTimeout(t, g, strict, time.Second)
}

func connectWithReadTimeout(t *testing.T, g *fakeGateway, strict bool, readTimeout time.Duration) (*GatewayClient, net.Conn) {
	t.Helper()

	client, err := Connect(context.Background(), GatewayConfig{
		Connection:        g.url(),
		ConnectTimeout:    time.Second,
		ReadTimeout:       readTimeout,
		ReconnectInterval: 50 * time.Millisecond,
		StrictLength:      strict,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, g.accept(t)
}

func TestEncodeEnvelope(t *testing.T) {
	env, err := EncodeEnvelope([]byte{0x02, 0x03, 0x00, 0x20, 0xFF})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	want := []byte{0x00, 0x05, 0x02, 0x03, 0x00, 0x20, 0xFF}
	if !bytes.Equal(env, want) {
		t.Errorf("EncodeEnvelope() = % X, want % X", env, want)
	}

	if _, err := EncodeEnvelope(make([]byte, 0x10000)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized frame error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		bufSize int
		want    []byte
		wantErr error
	}{
		{"single frame", []byte{0x00, 0x03, 0x01, 0x02, 0x03}, 16, []byte{0x01, 0x02, 0x03}, nil},
		{"empty frame", []byte{0x00, 0x00}, 16, []byte{}, nil},
		{"oversized", []byte{0x00, 0x20, 0x01}, 16, nil, ErrProtocolDesync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadEnvelope(bytes.NewReader(tt.input), make([]byte, tt.bufSize))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadEnvelope() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadEnvelope() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadEnvelope() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestReadEnvelope_Truncated(t *testing.T) {
	if _, err := ReadEnvelope(bytes.NewReader([]byte{0x00, 0x05, 0x01}), make([]byte, 16)); err == nil {
		t.Error("ReadEnvelope() expected error for truncated frame")
	}
}

func TestParseConnectionURL(t *testing.T) {
	tests := []struct {
		url         string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{"tcp://gw.local:4549", "tcp", "gw.local:4549", false},
		{"tcp://", "tcp", "localhost:4549", false},
		{"unix:///run/zwave.sock", "unix", "/run/zwave.sock", false},
		{"serial:///dev/ttyACM0", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			network, address, err := parseConnectionURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseConnectionURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if network != tt.wantNetwork || address != tt.wantAddress {
				t.Errorf("parseConnectionURL() = %s %s, want %s %s", network, address, tt.wantNetwork, tt.wantAddress)
			}
		})
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(2 * time.Second); got != 3*time.Second {
		t.Errorf("nextBackoff(2s) = %v, want 3s", got)
	}
	if got := nextBackoff(100 * time.Second); got != maxReconnectInterval {
		t.Errorf("nextBackoff(100s) = %v, want %v", got, maxReconnectInterval)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), GatewayConfig{
		Connection:     "tcp://127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}

	if _, err := Connect(context.Background(), GatewayConfig{Connection: "http://x"}); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() bad scheme error = %v, want ErrConnectionFailed", err)
	}
}

func TestGatewayClient_Receive(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectTestClient(t, g, false)

	received := make(chan zw.Message, 1)
	client.SetOnFrame(func(msg zw.Message) { received <- msg })

	writeFrame(t, conn, []byte{0x02, 0x03, 0x00, 0x20, 0xFF})

	select {
	case msg := <-received:
		if msg.NodeID != 0x03 || msg.CommandClass != zw.ClassBasic {
			t.Errorf("received %+v", msg)
		}
		if !bytes.Equal(msg.Data, []byte{0xFF}) {
			t.Errorf("Data = % X, want FF", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	if stats := client.Stats(); stats.FramesRx != 1 || !stats.Connected {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestGatewayClient_RejectsMalformed(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectTestClient(t, g, true)

	received := make(chan zw.Message, 2)
	client.SetOnFrame(func(msg zw.Message) { received <- msg })

	// Too short, then a strict-mode length mismatch, then a good frame.
	writeFrame(t, conn, []byte{0x01, 0x02})
	writeFrame(t, conn, []byte{0x02, 0x09, 0x00, 0x20, 0xFF})
	writeFrame(t, conn, []byte{0x02, 0x03, 0x20, 0xFF, 0x00})

	select {
	case msg := <-received:
		if msg.NodeID != 0x03 {
			t.Errorf("NodeID = %d, want 3", msg.NodeID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame not delivered")
	}

	if stats := client.Stats(); stats.FramesRejected != 2 || stats.FramesRx != 1 {
		t.Errorf("Stats() = %+v, want 2 rejected 1 received", stats)
	}
}

func TestGatewayClient_Send(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectTestClient(t, g, false)

	if err := client.Send(context.Background(), zw.BasicSet(5, zw.ValueOn)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := ReadEnvelope(conn, make([]byte, 64))
	if err != nil {
		t.Fatalf("ReadEnvelope() error: %v", err)
	}
	want := []byte{0x05, 0x03, 0x20, 0x01, 0xFF}
	if !bytes.Equal(frame, want) {
		t.Errorf("sent % X, want % X", frame, want)
	}
	if stats := client.Stats(); stats.FramesTx != 1 {
		t.Errorf("FramesTx = %d, want 1", stats.FramesTx)
	}
}

func TestGatewayClient_SendCancelled(t *testing.T) {
	g := newFakeGateway(t)
	client, _ := connectTestClient(t, g, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Send(ctx, zw.BasicGet(5)); !errors.Is(err, ErrSendFailed) {
		t.Errorf("Send() error = %v, want ErrSendFailed", err)
	}
}

func TestGatewayClient_CloseIdempotent(t *testing.T) {
	g := newFakeGateway(t)
	client, _ := connectTestClient(t, g, false)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Send(context.Background(), zw.BasicGet(5)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestGatewayClient_Reconnects(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectTestClient(t, g, false)

	conn.Close()
	conn2 := g.accept(t)

	deadline := time.Now().Add(2 * time.Second)
	for !client.IsConnected() || client.Stats().ReconnectsTotal == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect: %+v", client.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}

	received := make(chan zw.Message, 1)
	client.SetOnFrame(func(msg zw.Message) { received <- msg })
	writeFrame(t, conn2, []byte{0x00, 0x07, 0x00, 0x25, 0x00})

	select {
	case msg := <-received:
		if msg.NodeID != 7 {
			t.Errorf("NodeID = %d, want 7", msg.NodeID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered after reconnect")
	}
}

func TestGatewayClient_CallbackPanicRecovered(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectTestClient(t, g, false)

	calls := make(chan struct{}, 2)
	client.SetOnFrame(func(msg zw.Message) {
		calls <- struct{}{}
		if msg.NodeID == 1 {
			panic("boom")
		}
	})

	writeFrame(t, conn, []byte{0x00, 0x01, 0x00, 0x20, 0x00})
	writeFrame(t, conn, []byte{0x00, 0x02, 0x00, 0x20, 0x00})

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not invoked", i+1)
		}
	}
}

func TestGatewayClient_SlowFrameBody(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectWithReadTimeout(t, g, false, 200*time.Millisecond)

	received := make(chan zw.Message, 1)
	client.SetOnFrame(func(msg zw.Message) { received <- msg })

	// The body gets its own deadline once the size has arrived, wherever
	// the size fell in the idle window.
	if _, err := conn.Write([]byte{0x00, 0x05}); err != nil {
		t.Fatalf("write size: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := conn.Write([]byte{0x00, 0x04, 0x00, 0x25, 0xFF}); err != nil {
		t.Fatalf("write body: %v", err)
	}

	select {
	case msg := <-received:
		if msg.NodeID != 4 || msg.CommandClass != zw.ClassSwitchBinary {
			t.Errorf("received %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
	if stats := client.Stats(); stats.ReconnectsTotal != 0 {
		t.Errorf("ReconnectsTotal = %d, want 0", stats.ReconnectsTotal)
	}
}

func TestGatewayClient_StalledFrameDropsConnection(t *testing.T) {
	g := newFakeGateway(t)
	client, conn := connectWithReadTimeout(t, g, false, 100*time.Millisecond)

	received := make(chan zw.Message, 4)
	client.SetOnFrame(func(msg zw.Message) { received <- msg })

	if _, err := conn.Write([]byte{0x00, 0x05}); err != nil {
		t.Fatalf("write size: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	// The client has given up on this socket; the late bytes must not be
	// read as a new envelope.
	env, _ := EncodeEnvelope([]byte{0x00, 0x09, 0x00, 0x20, 0xFF}) //nolint:errcheck // fixed size
	_, _ = conn.Write(append([]byte{0x00, 0x03, 0x00, 0x20, 0xFF}, env...))

	conn2 := g.accept(t)
	writeFrame(t, conn2, []byte{0x00, 0x06, 0x00, 0x20, 0x00})

	select {
	case msg := <-received:
		if msg.NodeID != 6 {
			t.Errorf("first delivered NodeID = %d, want 6 from the new connection", msg.NodeID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered after reconnect")
	}

	stats := client.Stats()
	if stats.FramesRejected != 0 {
		t.Errorf("FramesRejected = %d, want 0", stats.FramesRejected)
	}
	if stats.ReconnectsTotal == 0 {
		t.Error("ReconnectsTotal = 0, want a reconnect after the stall")
	}
}
