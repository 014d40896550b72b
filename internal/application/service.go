package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/allowlist"
	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
	"github.com/Opizontas-Studio/dc-license-bot/internal/syslicense"
	"github.com/Opizontas-Studio/dc-license-bot/internal/threadlock"
)

type NotificationRelay interface {
	Notify(n relay.Notification) bool
	QueueDepth() int
	Stats() relay.Stats
}

type Service struct {
	cfg          Config
	templates    ports.TemplateRepository
	settings     ports.SettingsRepository
	publications ports.PublicationRepository
	platform     ports.Platform
	licenses     *syslicense.Cache
	channels     *allowlist.List
	relay        NotificationRelay
	locks        *threadlock.Map
	dedup        ports.DedupStore
	pending      ports.PendingStore
	telemetry    ports.Telemetry
	permissions  PermissionResolver
	logger       *slog.Logger
	startedAt    time.Time
	nowFn        func() time.Time
}

type Dependencies struct {
	Config       Config
	Templates    ports.TemplateRepository
	Settings     ports.SettingsRepository
	Publications ports.PublicationRepository
	Platform     ports.Platform
	Licenses     *syslicense.Cache
	Channels     *allowlist.List
	Relay        NotificationRelay
	Locks        *threadlock.Map
	Dedup        ports.DedupStore
	Pending      ports.PendingStore
	Telemetry    ports.Telemetry
	Logger       *slog.Logger
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dc-license-bot"
	}
	if cfg.MaxTemplatesPerOwner <= 0 {
		cfg.MaxTemplatesPerOwner = domain.MaxTemplatesPerOwner
	}
	if cfg.PlatformTimeout <= 0 {
		cfg.PlatformTimeout = 10 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if cfg.ThreadEventDedupTTL <= 0 {
		cfg.ThreadEventDedupTTL = 5 * time.Minute
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 180 * time.Second
	}
	locks := deps.Locks
	if locks == nil {
		locks = threadlock.New()
	}
	licenses := deps.Licenses
	if licenses == nil {
		licenses = syslicense.New(nil)
	}
	// A nil Channels falls back to the static config list.
	channels := deps.Channels
	if channels == nil {
		channels = allowlist.New(cfg.AllowedChannelIDs, nil)
	}
	telemetry := deps.Telemetry
	if telemetry == nil {
		telemetry = ports.NoopTelemetry{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := func() time.Time { return time.Now().UTC() }

	return &Service{
		cfg:          cfg,
		templates:    deps.Templates,
		settings:     deps.Settings,
		publications: deps.Publications,
		platform:     deps.Platform,
		licenses:     licenses,
		channels:     channels,
		relay:        deps.Relay,
		locks:        locks,
		dedup:        deps.Dedup,
		pending:      deps.Pending,
		telemetry:    telemetry,
		permissions:  NewPermissionResolver(cfg.AdminIDs),
		logger:       logger,
		startedAt:    now(),
		nowFn:        now,
	}
}

func (s *Service) Permissions() PermissionResolver {
	return s.permissions
}

func (s *Service) platformCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.PlatformTimeout)
}
