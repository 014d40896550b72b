package application

import (
	"strings"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

// PermissionResolver answers authorization questions from configuration and
// the inputs it is given. It never touches storage or the platform.
type PermissionResolver struct {
	admins map[string]struct{}
}

func NewPermissionResolver(adminIDs []string) PermissionResolver {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	return PermissionResolver{admins: admins}
}

func (p PermissionResolver) IsAdmin(requester string) bool {
	if requester == "" {
		return false
	}
	_, ok := p.admins[requester]
	return ok
}

func (p PermissionResolver) CanMutate(requester string, thread domain.ThreadInfo) bool {
	if requester == "" {
		return false
	}
	return p.IsAdmin(requester) || requester == thread.AuthorID
}

func (p PermissionResolver) CanManageTemplate(requester string, tpl domain.LicenseTemplate) bool {
	if requester == "" {
		return false
	}
	return p.IsAdmin(requester) || requester == tpl.OwnerID
}
