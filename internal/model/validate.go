package model

import "strings"

// ValidationError reports a record that is missing required fields. A record
// that fails validation must never be published or broadcast.
type ValidationError struct {
	DocumentID string
	Missing    []string
}

func (e *ValidationError) Error() string {
	id := e.DocumentID
	if id == "" {
		id = "<unknown>"
	}
	return "record " + id + " missing required fields: " + strings.Join(e.Missing, ", ")
}

// Validate checks that the post carries every field the consumer's handler
// requires. Returns a *ValidationError listing the missing fields, or nil.
func (p *ForumPost) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(p.TopicID) == "" {
		missing = append(missing, "topicId")
	}
	if strings.TrimSpace(p.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(p.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(p.CreatedAt) == "" {
		missing = append(missing, "createdAt")
	}
	if len(missing) > 0 {
		return &ValidationError{DocumentID: p.ID, Missing: missing}
	}
	return nil
}

// Validate checks that the vote update names a target and a known target type.
func (v *VoteUpdate) Validate() error {
	var missing []string
	if strings.TrimSpace(v.TargetID) == "" {
		missing = append(missing, "targetId")
	}
	switch v.TargetType {
	case TargetTopic, TargetPost:
	default:
		missing = append(missing, "targetType")
	}
	if len(missing) > 0 {
		return &ValidationError{DocumentID: v.TargetID, Missing: missing}
	}
	return nil
}
