package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/memory"
	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
	"github.com/Opizontas-Studio/dc-license-bot/internal/syslicense"
)

type fakeMessage struct {
	ThreadID string
	Content  string
	Pinned   bool
	Deleted  bool
}

type fakePlatform struct {
	mu          sync.Mutex
	threads     map[string]domain.ThreadInfo
	messages    map[string]*fakeMessage
	seq         int
	postGate    map[string]chan struct{}
	postStarted chan string
	postErr     error
	editErr     error
	calls       int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		threads:     map[string]domain.ThreadInfo{},
		messages:    map[string]*fakeMessage{},
		postGate:    map[string]chan struct{}{},
		postStarted: make(chan string, 64),
	}
}

func (p *fakePlatform) addThread(id, author string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[id] = domain.ThreadInfo{ThreadID: id, ChannelID: "forum", AuthorID: author, Title: "work " + id}
}

func (p *fakePlatform) GetThread(_ context.Context, id string) (domain.ThreadInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	th, ok := p.threads[id]
	if !ok {
		return domain.ThreadInfo{}, domain.ErrNotFound
	}
	return th, nil
}

func (p *fakePlatform) PostMessage(ctx context.Context, threadID, content string) (string, error) {
	p.mu.Lock()
	p.calls++
	gate := p.postGate[threadID]
	err := p.postErr
	p.mu.Unlock()

	select {
	case p.postStarted <- threadID:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("msg%d", p.seq)
	p.messages[id] = &fakeMessage{ThreadID: threadID, Content: content}
	return id, nil
}

func (p *fakePlatform) EditMessage(_ context.Context, threadID, messageID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	msg, ok := p.messages[messageID]
	if !ok || msg.Deleted || msg.ThreadID != threadID {
		return domain.ErrNotFound
	}
	if p.editErr != nil {
		return p.editErr
	}
	msg.Content = content
	return nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, threadID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	msg, ok := p.messages[messageID]
	if !ok || msg.Deleted || msg.ThreadID != threadID {
		return domain.ErrNotFound
	}
	msg.Deleted = true
	return nil
}

func (p *fakePlatform) PinMessage(_ context.Context, _, messageID string) error {
	return p.setPinned(messageID, true)
}

func (p *fakePlatform) UnpinMessage(_ context.Context, _, messageID string) error {
	return p.setPinned(messageID, false)
}

func (p *fakePlatform) setPinned(messageID string, pinned bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	msg, ok := p.messages[messageID]
	if !ok || msg.Deleted {
		return domain.ErrNotFound
	}
	msg.Pinned = pinned
	return nil
}

func (p *fakePlatform) message(id string) fakeMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg, ok := p.messages[id]; ok {
		return *msg
	}
	return fakeMessage{}
}

// liveDeclarations lists messages on a thread that still read as an active
// license declaration.
func (p *fakePlatform) liveDeclarations(threadID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id, msg := range p.messages {
		if msg.ThreadID == threadID && !msg.Deleted && strings.HasPrefix(msg.Content, "**License:") {
			out = append(out, id)
		}
	}
	return out
}

func (p *fakePlatform) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type captureRelay struct {
	mu   sync.Mutex
	sent []relay.Notification
}

func (r *captureRelay) Notify(n relay.Notification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return true
}

func (r *captureRelay) QueueDepth() int { return 0 }

func (r *captureRelay) Stats() relay.Stats { return relay.Stats{} }

func (r *captureRelay) notifications() []relay.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relay.Notification(nil), r.sent...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testLicenseDoc = `[
  {"license_name": "CC BY 4.0", "license_text": "Attribution required.", "allow_redistribution": true, "allow_modification": true, "allow_backup": true},
  {"license_name": "All rights reserved", "license_text": "No reuse.", "allow_redistribution": false, "allow_modification": false, "allow_backup": false},
]`

const adminID = "admin-1"

type harness struct {
	svc      *Service
	repos    *memory.Repositories
	platform *fakePlatform
	relay    *captureRelay
	licenses *syslicense.Cache
	pending  *memory.PendingStore
	clock    *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	licenses := syslicense.New(syslicense.BytesSource{Label: "test", Data: []byte(testLicenseDoc)})
	if _, err := licenses.Reload(context.Background()); err != nil {
		t.Fatalf("load licenses: %v", err)
	}
	h := &harness{
		repos:    memory.NewRepositories(),
		platform: newFakePlatform(),
		relay:    &captureRelay{},
		licenses: licenses,
		pending:  memory.NewPendingStore(),
		clock:    &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.svc = NewService(Dependencies{
		Config: Config{
			AdminIDs:            []string{adminID},
			NotifyBackupChanges: true,
			PlatformTimeout:     2 * time.Second,
			LockTimeout:         5 * time.Second,
		},
		Templates:    h.repos.Templates,
		Settings:     h.repos.Settings,
		Publications: h.repos.Publications,
		Platform:     h.platform,
		Licenses:     licenses,
		Relay:        h.relay,
		Dedup:        memory.NewDedupStore(),
		Pending:      h.pending,
	})
	h.svc.nowFn = h.clock.Now
	return h
}

func (h *harness) template(t *testing.T, owner string, flags domain.LicenseFlags) domain.LicenseTemplate {
	t.Helper()
	tpl, err := h.svc.CreateTemplate(context.Background(), owner, CreateTemplateRequest{Name: "Template of " + owner, Flags: flags})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func templateChoice(tpl domain.LicenseTemplate) domain.LicenseChoice {
	return domain.LicenseChoice{Source: domain.SourceTemplate, TemplateID: tpl.ID}
}

func systemChoice(name string) domain.LicenseChoice {
	return domain.LicenseChoice{Source: domain.SourceSystem, SystemName: name}
}
