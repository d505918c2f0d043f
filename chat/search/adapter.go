// Package search runs text queries over a community's messages.
//
// Matching is a case-insensitive substring test on searchable content. Results
// are drawn from the most recent Config.MaxCandidates matches.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/live"
	"github.com/sirupsen/logrus"
)

type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByDate      SortBy = "date"
	SortByReactions SortBy = "reactions"
)

type Params struct {
	CommunityID    string                 `json:"community_id"`
	Query          string                 `json:"query"`
	AuthorID       string                 `json:"author_id,omitempty"`
	Type           structures.MessageType `json:"type,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	HasAttachments *bool                  `json:"has_attachments,omitempty"`
	Since          *time.Time             `json:"since,omitempty"`
	Until          *time.Time             `json:"until,omitempty"`
	SortBy         SortBy                 `json:"sort_by,omitempty"`
	Order          structures.SortOrder   `json:"order,omitempty"`
	PageSize       int                    `json:"page_size,omitempty"`
	Page           int                    `json:"page,omitempty"` // 1-based
}

type Hit struct {
	Message structures.ChatMessage `json:"message"`
	Score   int                    `json:"score"`
}

type Page struct {
	Hits    []Hit `json:"hits"`
	Total   int   `json:"total"`
	Page    int   `json:"page"`
	HasMore bool  `json:"has_more"`
}

type Config struct {
	MaxCandidates   int
	DefaultPageSize int
	MaxPageSize     int
	Logger          logrus.FieldLogger
}

var DefaultConfig = Config{
	MaxCandidates:   500,
	DefaultPageSize: 20,
	MaxPageSize:     100,
	Logger:          logrus.StandardLogger(),
}

func (c Config) fill() Config {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultConfig.MaxCandidates
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = DefaultConfig.DefaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = DefaultConfig.MaxPageSize
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}
	return c
}

type Adapter struct {
	repo messages.Repository
	cfg  Config
}

func New(repo messages.Repository, cfg Config) *Adapter {
	return &Adapter{repo: repo, cfg: cfg.fill()}
}

func (a *Adapter) SearchMessages(ctx context.Context, p Params) (Page, error) {
	hits, err := a.run(ctx, p)
	if err != nil {
		return Page{}, err
	}

	size := p.PageSize
	if size <= 0 {
		size = a.cfg.DefaultPageSize
	}
	if size > a.cfg.MaxPageSize {
		size = a.cfg.MaxPageSize
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	start := (page - 1) * size
	if start > len(hits) {
		start = len(hits)
	}
	end := start + size
	if end > len(hits) {
		end = len(hits)
	}

	a.cfg.Logger.WithFields(logrus.Fields{
		"community_id": p.CommunityID,
		"query":        p.Query,
		"total":        len(hits),
	}).Debug("search, done")

	return Page{
		Hits:    hits[start:end],
		Total:   len(hits),
		Page:    page,
		HasMore: end < len(hits),
	}, nil
}

// SubscribeToSearch re-runs the query after every change in the community and
// pushes every hit, not just one page.
func (a *Adapter) SubscribeToSearch(ctx context.Context, p Params) *live.Stream[[]Hit] {
	source := func(ctx context.Context) (<-chan live.Signal, error) {
		if p.CommunityID == "" {
			return nil, errors.ErrMissingIdentifier
		}
		return a.repo.Watch(ctx, p.CommunityID)
	}
	return live.Start(ctx, source, func(ctx context.Context) ([]Hit, time.Duration, error) {
		hits, err := a.run(ctx, p)
		return hits, 0, err
	})
}

func (a *Adapter) run(ctx context.Context, p Params) ([]Hit, error) {
	if p.CommunityID == "" {
		return nil, errors.ErrMissingIdentifier
	}

	query := strings.ToLower(strings.TrimSpace(p.Query))
	candidates, err := a.repo.Find(ctx, p.CommunityID, messages.Query{
		Filter: structures.MessageFilter{
			AuthorID:       p.AuthorID,
			Type:           p.Type,
			Tags:           p.Tags,
			HasAttachments: p.HasAttachments,
			Text:           query,
			Since:          p.Since,
			Until:          p.Until,
		},
		Sort:  structures.DefaultSort,
		Limit: a.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(query)
	hits := make([]Hit, len(candidates))
	for i, m := range candidates {
		hits[i] = Hit{Message: m, Score: Score(m.SearchableContent, terms)}
	}
	sortHits(hits, p.SortBy, p.Order, query != "")
	return hits, nil
}

// Score counts the occurrences of every term in content.
func Score(content string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(content, t)
	}
	return n
}

func sortHits(hits []Hit, by SortBy, order structures.SortOrder, hasQuery bool) {
	if order != structures.SortAsc {
		order = structures.SortDesc
	}
	if by == "" {
		by = SortByRelevance
	}
	// relevance is meaningless without terms
	if by == SortByRelevance && !hasQuery {
		by = SortByDate
	}

	date := structures.Sort{Field: structures.SortByCreatedAt, Order: structures.SortDesc}
	var less func(a, b Hit) bool
	switch by {
	case SortByReactions:
		s := structures.Sort{Field: structures.SortByReactionCount, Order: order}
		less = func(a, b Hit) bool { return messages.Compare(a.Message, b.Message, s) < 0 }
	case SortByDate:
		date.Order = order
		less = func(a, b Hit) bool { return messages.Compare(a.Message, b.Message, date) < 0 }
	default:
		less = func(a, b Hit) bool {
			if a.Score != b.Score {
				if order == structures.SortAsc {
					return a.Score < b.Score
				}
				return a.Score > b.Score
			}
			return messages.Compare(a.Message, b.Message, date) < 0
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}
