package app

import (
	"time"

	"collab/api/internal/store"
)

func documentView(doc store.Document) map[string]any {
	view := map[string]any{
		"id":        doc.ID,
		"tenantId":  doc.TenantID,
		"title":     doc.Title,
		"content":   doc.Content,
		"ownerId":   doc.OwnerID,
		"version":   doc.Version,
		"locked":    doc.Locked(),
		"lockedBy":  nilIfEmpty(doc.LockedBy),
		"lockedAt":  timeOrNil(doc.LockedAt),
		"createdAt": doc.CreatedAt.Format(time.RFC3339),
		"updatedBy": doc.UpdatedBy,
		"updatedAt": doc.UpdatedAt.Format(time.RFC3339),
	}
	if doc.TeamID != "" {
		view["teamId"] = doc.TeamID
	}
	return view
}

func documentViews(items []store.Document) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, documentView(item))
	}
	return views
}

func versionView(version store.DocumentVersion) map[string]any {
	return map[string]any{
		"id":         version.ID,
		"documentId": version.DocumentID,
		"number":     version.Number,
		"content":    version.Content,
		"authorId":   version.AuthorID,
		"comment":    version.Comment,
		"createdAt":  version.CreatedAt.Format(time.RFC3339),
	}
}

func versionViews(items []store.DocumentVersion) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, versionView(item))
	}
	return views
}

func permissionView(permission store.DocumentPermission) map[string]any {
	return map[string]any{
		"documentId": permission.DocumentID,
		"userId":     permission.UserID,
		"level":      permission.Level,
		"grantedAt":  permission.GrantedAt.Format(time.RFC3339),
	}
}

func permissionViews(items []store.DocumentPermission) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, permissionView(item))
	}
	return views
}

func sessionView(session store.Session) map[string]any {
	return map[string]any{
		"id":          session.ID,
		"tenantId":    session.TenantID,
		"kind":        session.Kind,
		"title":       session.Title,
		"organizerId": session.OrganizerID,
		"status":      session.Status,
		"capacity":    session.Capacity,
		"locked":      session.Locked,
		"joinCode":    session.JoinCode,
		"scheduledAt": timeOrNil(session.ScheduledAt),
		"startedAt":   timeOrNil(session.StartedAt),
		"endedAt":     timeOrNil(session.EndedAt),
		"createdAt":   session.CreatedAt.Format(time.RFC3339),
	}
}

func participantView(participant store.Participant) map[string]any {
	return map[string]any{
		"id":         participant.ID,
		"sessionId":  participant.SessionID,
		"userId":     participant.UserID,
		"role":       participant.Role,
		"joinedAt":   participant.JoinedAt.Format(time.RFC3339),
		"leftAt":     timeOrNil(participant.LeftAt),
		"active":     participant.Active(),
		"muted":      participant.Muted,
		"hasControl": participant.HasControl,
		"kicked":     participant.Kicked,
	}
}

func participantViews(items []store.Participant) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, participantView(item))
	}
	return views
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timeOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(time.RFC3339)
}
