// Package memory keeps every repository in process memory. It backs tests and
// the "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/google/uuid"
)

type Repositories struct {
	Templates    *TemplateRepository
	Settings     *SettingsRepository
	Publications *PublicationRepository
}

// NewRepositories wires templates and publications to one mutex so a template
// delete and a publish referencing it serialize.
func NewRepositories() *Repositories {
	mu := &sync.Mutex{}
	templates := &TemplateRepository{mu: mu, rows: map[uuid.UUID]domain.LicenseTemplate{}}
	publications := &PublicationRepository{
		mu:        mu,
		templates: templates,
		posts:     map[string]domain.PublishedPost{},
		history:   map[string][]domain.PublicationEvent{},
		published: map[uuid.UUID]time.Time{},
	}
	templates.publications = publications
	return &Repositories{
		Templates:    templates,
		Settings:     &SettingsRepository{rows: map[string]domain.UserSettings{}},
		Publications: publications,
	}
}

type TemplateRepository struct {
	mu           *sync.Mutex
	rows         map[uuid.UUID]domain.LicenseTemplate
	publications *PublicationRepository
}

func (r *TemplateRepository) CreateWithQuota(_ context.Context, tpl domain.LicenseTemplate, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[tpl.ID]; ok {
		return domain.ErrConflict
	}
	owned := 0
	for _, row := range r.rows {
		if row.OwnerID == tpl.OwnerID {
			owned++
		}
	}
	if owned >= limit {
		return fmt.Errorf("%w: at most %d templates per owner", domain.ErrQuotaExceeded, limit)
	}
	r.rows[tpl.ID] = tpl
	return nil
}

func (r *TemplateRepository) Get(_ context.Context, id uuid.UUID) (domain.LicenseTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.rows[id]
	if !ok {
		return domain.LicenseTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	return tpl, nil
}

func (r *TemplateRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.LicenseTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LicenseTemplate, 0)
	for _, row := range r.rows {
		if row.OwnerID == ownerID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *TemplateRepository) Update(_ context.Context, tpl domain.LicenseTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[tpl.ID]
	if !ok {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, tpl.ID)
	}
	tpl.OwnerID = current.OwnerID
	tpl.UsageCount = current.UsageCount
	tpl.CreatedAt = current.CreatedAt
	r.rows[tpl.ID] = tpl
	return nil
}

func (r *TemplateRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	if n := r.publications.countByTemplate(id); n > 0 {
		return fmt.Errorf("%w: template %s is the live license on %d thread(s)", domain.ErrTemplateInUse, id, n)
	}
	delete(r.rows, id)
	return nil
}

func (r *TemplateRepository) IncrementUsage(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	tpl.UsageCount++
	r.rows[id] = tpl
	return nil
}

type SettingsRepository struct {
	mu   sync.Mutex
	rows map[string]domain.UserSettings
}

func (r *SettingsRepository) Get(_ context.Context, userID string) (domain.UserSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *SettingsRepository) Upsert(_ context.Context, s domain.UserSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rows[s.UserID]; ok && !current.CreatedAt.IsZero() {
		s.CreatedAt = current.CreatedAt
	}
	if s.DefaultLicense != nil {
		choice := *s.DefaultLicense
		s.DefaultLicense = &choice
	}
	r.rows[s.UserID] = s
	return nil
}

func (r *SettingsRepository) CountAutoPublishEnabled(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.rows {
		if s.AutoPublishEnabled {
			n++
		}
	}
	return n, nil
}

type PublicationRepository struct {
	mu        *sync.Mutex
	templates *TemplateRepository
	posts     map[string]domain.PublishedPost
	history   map[string][]domain.PublicationEvent
	published map[uuid.UUID]time.Time
	failNext  error
	failReads error
}

// FailNext makes the next write return err. Tests use it to simulate a
// storage outage.
func (r *PublicationRepository) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// FailReads makes every read return err until it is called with nil.
func (r *PublicationRepository) FailReads(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failReads = err
}

func (r *PublicationRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *PublicationRepository) checkTemplate(post domain.PublishedPost) error {
	if post.Source != domain.SourceTemplate {
		return nil
	}
	if _, ok := r.templates.rows[post.SourceTemplateID]; !ok {
		return fmt.Errorf("%w: template %s was deleted", domain.ErrNotFound, post.SourceTemplateID)
	}
	return nil
}

func (r *PublicationRepository) GetByThread(_ context.Context, threadID string) (domain.PublishedPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads != nil {
		return domain.PublishedPost{}, r.failReads
	}
	post, ok := r.posts[threadID]
	if !ok {
		return domain.PublishedPost{}, fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, threadID)
	}
	return post, nil
}

func (r *PublicationRepository) Create(_ context.Context, post domain.PublishedPost, event domain.PublicationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.posts[post.ThreadID]; ok {
		return fmt.Errorf("%w: thread %s already published", domain.ErrConflict, post.ThreadID)
	}
	if err := r.checkTemplate(post); err != nil {
		return err
	}
	r.posts[post.ThreadID] = post
	r.history[post.ThreadID] = append(r.history[post.ThreadID], event)
	return nil
}

func (r *PublicationRepository) Replace(_ context.Context, post domain.PublishedPost, event domain.PublicationEvent, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	current, ok := r.posts[post.ThreadID]
	if !ok {
		return fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, post.ThreadID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: thread %s is at version %d, expected %d", domain.ErrConflict, post.ThreadID, current.Version, expectedVersion)
	}
	if err := r.checkTemplate(post); err != nil {
		return err
	}
	r.posts[post.ThreadID] = post
	r.history[post.ThreadID] = append(r.history[post.ThreadID], event)
	return nil
}

func (r *PublicationRepository) Retire(_ context.Context, threadID string, event domain.PublicationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.posts[threadID]; !ok {
		return fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, threadID)
	}
	delete(r.posts, threadID)
	r.history[threadID] = append(r.history[threadID], event)
	return nil
}

func (r *PublicationRepository) History(_ context.Context, threadID string) ([]domain.PublicationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads != nil {
		return nil, r.failReads
	}
	return append([]domain.PublicationEvent(nil), r.history[threadID]...), nil
}

func (r *PublicationRepository) countByTemplate(templateID uuid.UUID) int64 {
	var n int64
	for _, post := range r.posts {
		if post.Source == domain.SourceTemplate && post.SourceTemplateID == templateID {
			n++
		}
	}
	return n
}

func (r *PublicationRepository) Stats(context.Context) (ports.PublicationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats ports.PublicationStats
	for _, post := range r.posts {
		stats.Total++
		if post.BackupAllowed {
			stats.BackupAllowed++
		}
	}
	return stats, nil
}

func (r *PublicationRepository) FetchUnpublished(_ context.Context, limit int) ([]domain.PublicationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PublicationEvent
	for _, events := range r.history {
		for _, ev := range events {
			if _, done := r.published[ev.ID]; !done {
				out = append(out, ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PublicationRepository) MarkPublished(_ context.Context, eventID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[eventID] = at
	return nil
}

var (
	_ ports.TemplateRepository    = (*TemplateRepository)(nil)
	_ ports.SettingsRepository    = (*SettingsRepository)(nil)
	_ ports.PublicationRepository = (*PublicationRepository)(nil)
	_ ports.OutboxRepository      = (*PublicationRepository)(nil)
)
