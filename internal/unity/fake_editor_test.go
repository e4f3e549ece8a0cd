package unity

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
)

// fakeEditor answers bridge commands on a loopback listener.
type fakeEditor struct {
	t        *testing.T
	ln       net.Listener
	mu       sync.Mutex
	received []command
	handle   func(cmd command) any
	wg       sync.WaitGroup
}

func newFakeEditor(t *testing.T, handle func(cmd command) any) *fakeEditor {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	e := &fakeEditor{t: t, ln: ln, handle: handle}
	e.wg.Add(1)
	go e.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		e.wg.Wait()
	})
	return e
}

func (e *fakeEditor) Address() string {
	return e.ln.Addr().String()
}

func (e *fakeEditor) serve() {
	defer e.wg.Done()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			return
		}
		var cmd command
		if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
			_ = conn.Close()
			continue
		}
		e.mu.Lock()
		e.received = append(e.received, cmd)
		e.mu.Unlock()
		_ = json.NewEncoder(conn).Encode(e.handle(cmd))
		_ = conn.Close()
	}
}

func (e *fakeEditor) Commands() []command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]command, len(e.received))
	copy(out, e.received)
	return out
}

func success(result map[string]any) map[string]any {
	return map[string]any{"status": "success", "result": result}
}

func failure(msg string) map[string]any {
	return map[string]any{"status": "error", "error": msg}
}
