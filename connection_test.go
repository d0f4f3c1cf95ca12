package main

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConnWorker(t *testing.T, idleTimeout time.Duration) (client net.Conn, done chan struct{}) {
	t.Helper()
	server, client := net.Pipe()

	store := NewStore(8)
	metrics := NewMetrics(store)
	buffers, err := NewBufferPool(8)
	require.NoError(t, err)
	t.Cleanup(buffers.Close)

	executor := NewExecutor(store, metrics, buffers)
	worker := newConnWorker(server, executor, idleTimeout, 1024, zap.NewNop())

	done = make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()
	return client, done
}

func TestConnectionScenarioSetGetDelete(t *testing.T) {
	client, done := newTestConnWorker(t, time.Second)
	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set test 0 0 4\r\n1234\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "STORED\r\n", line)

	_, err = client.Write([]byte("get test\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE 1234 0 4\r\n", line)

	_, err = client.Write([]byte("delete test\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "DELETED\r\n", line)

	_, err = client.Write([]byte("delete test\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "END\r\n", line)

	client.Close()
	<-done
}

func TestConnectionPipelinedCommands(t *testing.T) {
	client, done := newTestConnWorker(t, time.Second)
	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set test 0 0 4\r\n1234\r\nget test\r\n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "STORED\r\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE 1234 0 4\r\n", line)

	client.Close()
	<-done
}

func TestConnectionExpiry(t *testing.T) {
	client, done := newTestConnWorker(t, 2*time.Second)
	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set diff 0 1 4\r\n1234\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "STORED\r\n", line)

	_, err = client.Write([]byte("get diff\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE 1234 0 4\r\n", line)

	time.Sleep(1100 * time.Millisecond)

	_, err = client.Write([]byte("get diff\r\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "END\r\n", line)

	client.Close()
	<-done
}

func TestConnectionNoReplySuppressesResponse(t *testing.T) {
	client, done := newTestConnWorker(t, time.Second)
	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set test 0 0 4 noreply\r\n1234\r\nget test\r\n"))
	require.NoError(t, err)

	// Only one reply line should arrive: the GET's, not the noreply SET's.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "VALUE 1234 0 4\r\n", line)

	client.Close()
	<-done
}

func TestConnectionProtocolErrorClosesWithoutReply(t *testing.T) {
	client, done := newTestConnWorker(t, time.Second)

	_, err := client.Write([]byte("bogus\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	require.Equal(t, 0, n)
	require.Error(t, err, "connection should be closed with no response line on a protocol error")

	<-done
}

func TestConnectionIdleTimeout(t *testing.T) {
	client, done := newTestConnWorker(t, 100*time.Millisecond)
	defer client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection worker did not close after idle timeout")
	}
}
