package security

import (
	"strings"
	"time"

	"adventbot/internal/storage"
	"adventbot/pkg/logx"
)

// Principal identifies the sender of an inbound update.
type Principal struct {
	ID        int64
	Username  string
	FirstName string
}

// DisplayName falls back to the first name when the account has no username.
func (p Principal) DisplayName() string {
	if strings.TrimSpace(p.Username) != "" {
		return p.Username
	}
	return p.FirstName
}

// Guard holds the static admin allow-list and the in-memory block set.
// Constructed once at startup; the allow-list never changes at runtime.
// The block set has no exposed mutation path yet and exists for future
// policy. Denials are audit-logged to the registry and the warn log.
type Guard struct {
	admins  map[int64]struct{}
	blocked map[int64]struct{}
	audit   storage.AuditSink
	log     logx.Logger
}

func NewGuard(admins []int64, audit storage.AuditSink, log logx.Logger) *Guard {
	if log.IsZero() {
		log = logx.Nop()
	}
	set := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return &Guard{
		admins:  set,
		blocked: map[int64]struct{}{},
		audit:   audit,
		log:     log,
	}
}

func (g *Guard) IsAdmin(id int64) bool {
	_, ok := g.admins[id]
	return ok
}

func (g *Guard) IsBlocked(id int64) bool {
	_, ok := g.blocked[id]
	return ok
}

// CheckAccess grants silently; denials are logged as suspicious activity and
// return a short user-visible reason.
func (g *Guard) CheckAccess(p Principal) (bool, string) {
	if g.IsBlocked(p.ID) {
		g.logSuspicious(p, "access_attempt", "blocked user tried to access")
		return false, "Доступ заблокирован"
	}
	if !g.IsAdmin(p.ID) {
		g.logSuspicious(p, "unauthorized_access", "non-admin tried to access admin functions")
		return false, "У вас нет доступа к админ-панели"
	}
	return true, ""
}

func (g *Guard) logSuspicious(p Principal, action, detail string) {
	g.log.Warn("suspicious activity",
		logx.Int64("user_id", p.ID),
		logx.String("username", p.DisplayName()),
		logx.String("action", action),
		logx.String("detail", detail),
	)
	if g.audit == nil {
		return
	}
	err := g.audit.AppendAudit(storage.AuditEntry{
		At:       time.Now(),
		ActorID:  p.ID,
		Username: p.DisplayName(),
		Action:   action,
		Detail:   detail,
	})
	if err != nil {
		g.log.Error("audit append failed", logx.Err(err))
	}
}

const defaultMaxTextLen = 5000

// Sanitize strips null bytes and carriage returns, truncates to maxLen runes
// (0 means the default of 5000), and trims surrounding whitespace.
func Sanitize(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = defaultMaxTextLen
	}
	text = strings.NewReplacer("\x00", "", "\r", "").Replace(text)
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen])
	}
	return strings.TrimSpace(text)
}

// ValidateDate accepts YYYY-MM-DD with the year within [2020, 2030].
func ValidateDate(s string) bool {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return false
	}
	y := t.Year()
	return y >= 2020 && y <= 2030
}

// ValidateURL accepts plain http/https links only.
func ValidateURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
