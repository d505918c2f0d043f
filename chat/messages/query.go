package messages

import (
	"sort"
	"strings"

	"github.com/alumnihub/chat/structures"
)

// Matches applies f to m the same way the Mongo filter does.
func Matches(m structures.ChatMessage, f structures.MessageFilter) bool {
	if f.AuthorID != "" && m.AuthorID != f.AuthorID {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(m.Tags, f.Tags) {
		return false
	}
	if f.HasAttachments != nil && m.HasAttachments() != *f.HasAttachments {
		return false
	}
	if f.ThreadID != "" && m.ThreadID != f.ThreadID {
		return false
	}
	if f.PinnedOnly && !m.IsPinned {
		return false
	}
	if f.BookmarkedBy != "" && !m.IsBookmarkedBy(f.BookmarkedBy) {
		return false
	}
	if f.Text != "" && !strings.Contains(m.SearchableContent, strings.ToLower(f.Text)) {
		return false
	}
	if f.Since != nil && m.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && m.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Compare orders a before b under s: negative when a comes first. Ties on the
// sort field fall back to created_at and then id, both in the sort direction.
func Compare(a, b structures.ChatMessage, s structures.Sort) int {
	c := 0
	if s.Field == structures.SortByReactionCount {
		c = cmpInt(int64(a.ReactionCount), int64(b.ReactionCount))
	}
	if c == 0 {
		c = cmpInt(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Order == structures.SortDesc {
		c = -c
	}
	return c
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortMessages sorts in place.
func SortMessages(list []structures.ChatMessage, s structures.Sort) {
	s = s.Normalize()
	sort.SliceStable(list, func(i, j int) bool { return Compare(list[i], list[j], s) < 0 })
}

// afterCursor reports whether m sorts strictly after the cursor position.
func afterCursor(m structures.ChatMessage, c *structures.Cursor, s structures.Sort) bool {
	if c == nil {
		return true
	}
	pivot := structures.ChatMessage{ID: c.ID, CreatedAt: c.CreatedAt, ReactionCount: int(c.Value)}
	return Compare(m, pivot, s) > 0
}
