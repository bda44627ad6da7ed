package campusAuth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Correct-Horse-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *fakeMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type testEnv struct {
	engine    *Engine
	users     *store.Users
	relations *store.Relations
	rdb       redis.UniversalClient
	mr        *miniredis.Miniredis
	clock     *fakeClock
	mailer    *fakeMailer
	sink      *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 4
	cfg.Redis.Prefix = "test"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx, store.Migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		users:     store.NewUsers(db),
		relations: store.NewRelations(db),
		rdb:       rdb,
		mr:        mr,
		clock:     newFakeClock(),
		mailer:    &fakeMailer{},
		sink:      NewChannelSink(256),
	}

	engine, err := New().
		WithConfig(cfg).
		WithUsers(env.users).
		WithRelations(env.relations).
		WithRedis(rdb).
		WithMailer(env.mailer).
		WithAuditSink(env.sink).
		WithClock(env.clock).
		WithPermissions([]string{"students.read", "classes.read", "invoices.read"}).
		WithRoles(map[string][]string{
			"teacher": {"students.read", "classes.read"},
			"student": {"students.read", "classes.read"},
			"parent":  {"students.read", "classes.read", "invoices.read"},
		}).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) seedUser(t *testing.T, id, username string, role model.Role) *model.User {
	t.Helper()
	h, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	hash, err := h.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := env.clock.Now()
	u := &model.User{
		ID:           id,
		Username:     username,
		Email:        username + "@school.test",
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.users.Save(context.Background(), u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func (env *testEnv) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := env.users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find user %s: %v", id, err)
	}
	return u
}

// drainEvents returns every audit event emitted so far.
func (env *testEnv) drainEvents() []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-env.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []AuditEvent, eventType string) bool {
	for _, ev := range events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}
