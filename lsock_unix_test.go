//go:build unix

package lsock

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "lsock-test.sock")
}

func TestListenConnectAcceptRoundTrip(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}

	ln, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var serverErr error
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			serverErr = err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			serverErr = err
			return
		}
		if string(buf) != "hello" {
			serverErr = errors.New("unexpected payload")
		}
	}()

	client, err := Connect(NewConnectOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	wg.Wait()
	if serverErr != nil {
		t.Fatal(serverErr)
	}
}

func TestListenTwiceWithoutOverwriteFailsAddrInUse(t *testing.T) {
	path := tempSocketPath(t)
	name, err := ToFsName(path)
	if err != nil {
		t.Fatal(err)
	}

	first, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	_, err = Listen(NewListenerOptions(name))
	if !errors.Is(err, ErrAddrInUse) {
		t.Fatalf("expected ErrAddrInUse, got %v", err)
	}
}

func TestListenWithTryOverwriteSucceedsOverStale(t *testing.T) {
	path := tempSocketPath(t)
	name, err := ToFsName(path)
	if err != nil {
		t.Fatal(err)
	}

	first, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}

	opts := NewListenerOptions(name)
	opts.TryOverwrite = true
	second, err := Listen(opts)
	if err != nil {
		t.Fatalf("overwrite listen failed: %v", err)
	}
	defer second.Close()

	// The first listener's handle is still open but the name now belongs
	// to the second: a fresh accept on the first never sees new clients
	// because it keeps its original backing socket.
	_ = first
}

func TestReclaimNameOnDropRemovesSocketFile(t *testing.T) {
	path := tempSocketPath(t)
	name, err := ToFsName(path)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected socket file to be removed, stat err = %v", err)
	}
}

func TestReclaimDisabledLeavesSocketFile(t *testing.T) {
	path := tempSocketPath(t)
	name, err := ToFsName(path)
	if err != nil {
		t.Fatal(err)
	}

	opts := NewListenerOptions(name)
	opts.ReclaimNameOnDrop = false
	ln, err := Listen(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected socket file to remain, got stat err = %v", err)
	}
	os.Remove(path)
}

func TestConnectWithNoListenerFails(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Connect(NewConnectOptions(name))
	if err == nil {
		t.Fatal("expected an error connecting to a nonexistent socket")
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConnectionRefused) {
		t.Fatalf("expected ErrNotFound or ErrConnectionRefused, got %v", err)
	}
}

func TestConnectFailWaitPolicyReturnsImmediately(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = Connect(NewConnectOptions(name).WithWait(Fail()))
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Fail wait policy took too long: %v", time.Since(start))
	}
}

func TestSplitAndReuniteRoundTrip(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err == nil {
			conn.Write([]byte("x"))
			conn.Close()
		}
	}()

	client, err := Connect(NewConnectOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	recv, send := client.Split()
	reunited, err := Reunite(recv, send)
	if err != nil {
		t.Fatal(err)
	}
	defer reunited.Close()

	buf := make([]byte, 1)
	if _, err := reunited.Read(buf); err != nil {
		t.Fatal(err)
	}
}

func TestAbstractNamespaceRoundTrip(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "android" {
		t.Skip("abstract namespace sockets require Linux or Android")
	}

	name, err := ToNsName("lsock-abstract-test")
	if err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	client, err := Connect(NewConnectOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	wg.Wait()
}

func TestPeerPIDReportsOwnProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("SO_PEERCRED is Linux-only")
	}

	name, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(NewListenerOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var serverPID uint32
	var serverErr error
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			serverErr = err
			return
		}
		defer conn.Close()
		serverPID, serverErr = conn.PeerPID()
	}()

	client, err := Connect(NewConnectOptions(name))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	wg.Wait()

	if serverErr != nil {
		t.Fatal(serverErr)
	}
	if serverPID != uint32(os.Getpid()) {
		t.Fatalf("expected peer pid %d, got %d", os.Getpid(), serverPID)
	}
}

// TestReadContextWriteContextRoundTrip exercises the readiness-polled
// (context-cancelable) surface end to end: both peers use the Context
// variants of connect/accept/read/write instead of the plain blocking ones.
func TestReadContextWriteContextRoundTrip(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	require.NoError(t, err)

	ln, err := Listen(NewListenerOptions(name))
	require.NoError(t, err)
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.AcceptContext(context.Background())
		require.NoError(t, err)
		defer conn.Close()
		buf := make([]byte, 5)
		n, err := conn.ReadContext(context.Background(), buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf[:n]))
	}()

	client, err := ConnectContext(context.Background(), NewConnectOptions(name))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WriteContext(context.Background(), []byte("hello"))
	require.NoError(t, err)

	wg.Wait()
}

// TestAcceptContextCancellation confirms canceling the context passed to
// AcceptContext unblocks a pending accept rather than waiting for a peer
// that may never arrive.
func TestAcceptContextCancellation(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	require.NoError(t, err)
	ln, err := Listen(NewListenerOptions(name))
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ln.AcceptContext(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("AcceptContext did not observe cancellation")
	}
}

// TestConnectContextCancellation confirms canceling the context passed to
// ConnectContext unblocks a dial that opts.Wait alone would keep retrying.
func TestConnectContextCancellation(t *testing.T) {
	name, err := ToFsName(tempSocketPath(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ConnectContext(ctx, NewConnectOptions(name).WithWait(Wait()))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectContext did not observe cancellation")
	}
}

func TestReuniteMismatchedHalvesFails(t *testing.T) {
	nameA, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}
	nameB, err := ToFsName(tempSocketPath(t))
	if err != nil {
		t.Fatal(err)
	}

	lnA, err := Listen(NewListenerOptions(nameA))
	if err != nil {
		t.Fatal(err)
	}
	defer lnA.Close()
	lnB, err := Listen(NewListenerOptions(nameB))
	if err != nil {
		t.Fatal(err)
	}
	defer lnB.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if c, _ := lnA.Accept(); c != nil {
			c.Close()
		}
	}()
	go func() {
		defer wg.Done()
		if c, _ := lnB.Accept(); c != nil {
			c.Close()
		}
	}()

	streamA, err := Connect(NewConnectOptions(nameA))
	if err != nil {
		t.Fatal(err)
	}
	streamB, err := Connect(NewConnectOptions(nameB))
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	recvA, _ := streamA.Split()
	_, sendB := streamB.Split()

	_, err = Reunite(recvA, sendB)
	var reuniteErr *ReuniteError
	if !errors.As(err, &reuniteErr) {
		t.Fatalf("expected *ReuniteError, got %v", err)
	}
}
