package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/docshare/modules/store"
)

// fakeUserStore keeps users in memory.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*store.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(context.Background(), email)
	return err == nil, nil
}

func newTestService() *Service {
	// Minimum bcrypt cost keeps the test fast.
	hasher := &PasswordHasher{cost: 4}
	return NewService(newFakeUserStore(), hasher, NewJWTManager(DefaultJWTConfig()))
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	user, token, err := svc.Register(ctx, "Alice@Example.com", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if token == "" {
		t.Fatal("Register() returned empty token")
	}

	t.Run("token resolves to the account", func(t *testing.T) {
		current, err := svc.CurrentUser(ctx, token)
		if err != nil {
			t.Fatalf("CurrentUser() error = %v", err)
		}
		if current.ID != user.ID {
			t.Errorf("CurrentUser() id = %q, want %q", current.ID, user.ID)
		}
	})

	t.Run("login with correct password", func(t *testing.T) {
		_, loginToken, err := svc.Login(ctx, "alice@example.com", "correct horse")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if loginToken == "" {
			t.Error("Login() returned empty token")
		}
	})

	t.Run("login with wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice@example.com", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("login with unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@example.com", "whatever")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, _, err := svc.Register(ctx, "alice@example.com", "Alice", "long enough"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "duplicate email", email: "alice@example.com", password: "long enough", wantErr: ErrEmailTaken},
		{name: "short password", email: "bob@example.com", password: "short", wantErr: ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tt.email, "x", tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTManager_Validate(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig())

	token, err := manager.Generate("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "alice@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	t.Run("garbage token", func(t *testing.T) {
		if _, err := manager.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTManager(JWTConfig{SecretKey: "different", TokenDuration: time.Hour, Issuer: "docshare"})
		if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		config := DefaultJWTConfig()
		config.TokenDuration = -time.Minute
		expired, err := NewJWTManager(config).Generate("user-1", "alice@example.com")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if _, err := manager.Validate(expired); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("Validate() error = %v, want ErrExpiredToken", err)
		}
	})
}
