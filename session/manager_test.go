package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gogpu/canvas/scene"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(WithInteractionLog(4))
	defer m.Shutdown()

	a, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("duplicate session id")
	}
	id, err := uuid.Parse(a.ID)
	if err != nil {
		t.Fatalf("id %q is not a UUID: %v", a.ID, err)
	}
	if id.Version() != 7 {
		t.Errorf("uuid version = %d, want 7", id.Version())
	}

	got, err := m.Get(a.ID)
	if err != nil || got != a {
		t.Errorf("Get = %v, %v", got, err)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d", m.Len())
	}
	if ss := m.Sessions(); len(ss) != 2 || ss[0] != a || ss[1] != b {
		t.Errorf("Sessions not in creation order")
	}

	if err := m.Close(a.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Close err = %v, want ErrNotFound", err)
	}
	if err := m.Close(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Close err = %v, want ErrNotFound", err)
	}
}

func TestManagerSessionsAreIsolated(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()
	a, _ := m.Create()
	b, _ := m.Create()

	if _, err := a.Render([]scene.Element{rect("x", 0, 0, 1, 1, 0, scene.Black)}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Interact(Interaction{Voice: "hello"}); err != nil {
		t.Fatal(err)
	}
	if b.Store.Version() != 0 || b.Store.Graph().Len() != 0 {
		t.Error("render leaked into another session")
	}
	if len(b.Interactions()) != 0 {
		t.Error("interaction leaked into another session")
	}
}

func TestManagerShutdown(t *testing.T) {
	m := NewManager()
	_, _ = m.Create()
	m.Shutdown()
	if m.Len() != 0 {
		t.Errorf("Len after Shutdown = %d", m.Len())
	}
	if _, err := m.Create(); !errors.Is(err, ErrClosed) {
		t.Errorf("Create after Shutdown err = %v, want ErrClosed", err)
	}
}
