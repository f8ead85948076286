//go:build unix

package udsock

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSocketBindListenAcceptConnectRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "udsock-test.sock")

	srv, err := Socket("udsock-test-server")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	if err := srv.Bind(path, false); err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(1); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		conn, err := srv.Accept(context.Background())
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		if _, err := conn.Read(buf); err != nil {
			done <- err
			return
		}
		if string(buf) != "hey" {
			done <- errUnexpectedPayload
			return
		}
		done <- nil
	}()

	cli, err := Socket("udsock-test-client")
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()
	if err := cli.Connect(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Write([]byte("hey")); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

var errUnexpectedPayload = errUnexpected("unexpected payload")

type errUnexpected string

func (e errUnexpected) Error() string { return string(e) }

func TestConnectToMissingSocketFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.sock")

	cli, err := Socket("udsock-test-missing")
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	if err := cli.Connect(context.Background(), path, false); err == nil {
		t.Fatal("expected connect to a nonexistent socket to fail")
	}
}
