package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
	"github.com/support-eye/relay/internal/store"
)

// failingStore turns write failures on and off around a Memory store.
type failingStore struct {
	*store.Memory
	failWrites bool
}

func (f *failingStore) UpdateStatus(ctx context.Context, token string, status domain.SessionStatus) error {
	if f.failWrites {
		return fmt.Errorf("%w: connection refused", errs.ErrStoreUnavailable)
	}
	return f.Memory.UpdateStatus(ctx, token, status)
}

func TestCreatePersistsWaiting(t *testing.T) {
	mem := store.NewMemory()
	reg := New(mem)

	sess, err := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Status != domain.StatusWaiting {
		t.Errorf("status = %q, want WAITING", sess.Status)
	}
	if sess.Token == "" {
		t.Error("expected a generated token")
	}

	stored, err := mem.Get(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.Status != domain.StatusWaiting {
		t.Errorf("stored status = %q, want WAITING", stored.Status)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	reg := New(store.NewMemory())
	if _, err := reg.Validate(context.Background(), "NO-SUCH-TOKEN"); !errors.Is(err, errs.ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestValidateIsCaseInsensitive(t *testing.T) {
	reg := New(store.NewMemory())
	sess, err := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, token := range []string{sess.Token, "  " + sess.Token + " "} {
		if _, err := reg.Validate(context.Background(), token); err != nil {
			t.Errorf("Validate(%q): %v", token, err)
		}
	}
}

func TestValidateRejectsCompleted(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusCompleted); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := reg.Validate(context.Background(), sess.Token); !errors.Is(err, errs.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestValidateLoadsCompletedFromStore(t *testing.T) {
	// A COMPLETED record already in the store must look closed, not
	// unknown, even before the registry has cached it.
	mem := store.NewMemory()
	_ = mem.Create(context.Background(), &domain.Session{Token: "ABC123", Status: domain.StatusCompleted})

	reg := New(mem)
	if _, err := reg.Validate(context.Background(), "abc123"); !errors.Is(err, errs.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestTransitionIdempotent(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")

	_, applied, err := reg.Transition(context.Background(), sess.Token, domain.StatusConnected)
	if err != nil || !applied {
		t.Fatalf("first transition: applied=%v err=%v", applied, err)
	}
	_, applied, err = reg.Transition(context.Background(), sess.Token, domain.StatusConnected)
	if err != nil {
		t.Fatalf("repeated transition: %v", err)
	}
	if applied {
		t.Error("repeated identical transition must be a no-op")
	}
}

func TestTransitionInvalid(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	_, _, _ = reg.Transition(context.Background(), sess.Token, domain.StatusConnected)

	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusWaiting); !errors.Is(err, errs.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestDisconnectedOscillation(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	steps := []domain.SessionStatus{
		domain.StatusConnected,
		domain.StatusDisconnected,
		domain.StatusConnected,
		domain.StatusCompleted,
	}
	for _, s := range steps {
		if _, _, err := reg.Transition(context.Background(), sess.Token, s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	_, _, _ = reg.Transition(context.Background(), sess.Token, domain.StatusCompleted)

	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusConnected); !errors.Is(err, errs.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	// Forcing COMPLETED again is the idempotent no-op, not an error.
	_, applied, err := reg.Transition(context.Background(), sess.Token, domain.StatusCompleted)
	if err != nil || applied {
		t.Errorf("repeat COMPLETED: applied=%v err=%v, want no-op success", applied, err)
	}
}

func TestStoreFailureAbortsTransition(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	reg := New(fs)
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")

	fs.failWrites = true
	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusConnected); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}

	fs.failWrites = false
	got, err := reg.Validate(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Status != domain.StatusWaiting {
		t.Errorf("status = %q after failed write, want WAITING", got.Status)
	}
}

func TestCompletedTransitionDropsTokenLock(t *testing.T) {
	reg := New(store.NewMemory())
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")

	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusConnected); err != nil {
		t.Fatalf("Transition CONNECTED: %v", err)
	}
	reg.mu.RLock()
	_, held := reg.locks[sess.Token]
	reg.mu.RUnlock()
	if !held {
		t.Fatal("expected a token lock entry while the session is live")
	}

	if _, _, err := reg.Transition(context.Background(), sess.Token, domain.StatusCompleted); err != nil {
		t.Fatalf("Transition COMPLETED: %v", err)
	}
	reg.mu.RLock()
	_, held = reg.locks[sess.Token]
	reg.mu.RUnlock()
	if held {
		t.Error("token lock entry survived the terminal transition")
	}
}
