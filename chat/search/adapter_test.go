package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alumnihub/chat/chat/membership"
	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *messages.Store
	repo    *messages.MemoryRepository
	adapter *Adapter
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	f := &fixture{repo: messages.NewMemoryRepository(), now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	oracle := membership.NewStatic()
	oracle.SetRole("c1", "u1", structures.RoleMember)
	oracle.SetRole("c1", "u2", structures.RoleMember)
	f.store = messages.New(f.repo, oracle, nil, messages.Config{Now: func() time.Time { return f.now }})
	f.adapter = New(f.repo, cfg)
	return f
}

func (f *fixture) send(t *testing.T, author string, draft structures.MessageDraft) string {
	t.Helper()
	id, err := f.store.SendMessage(context.Background(), "c1", draft, author)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	return id
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Message.ID
	}
	return out
}

func TestSearchRelevance(t *testing.T) {
	f := newFixture(t, Config{})
	once := f.send(t, "u1", structures.MessageDraft{Content: "Go is fun"})
	twice := f.send(t, "u2", structures.MessageDraft{Content: "go go gadget"})
	newer := f.send(t, "u1", structures.MessageDraft{Content: "learning GO"})
	f.send(t, "u1", structures.MessageDraft{Content: "python only"})

	page, err := f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", Query: "Go"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{twice, newer, once}, ids(page.Hits))
	assert.Equal(t, 2, page.Hits[0].Score)
	assert.False(t, page.HasMore)
}

func TestSearchEmptyQueryFallsBackToDate(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.send(t, "u1", structures.MessageDraft{Content: "first"})
	b := f.send(t, "u1", structures.MessageDraft{Content: "second"})

	page, err := f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, ids(page.Hits))

	page, err = f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", SortBy: SortByDate, Order: structures.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, ids(page.Hits))
}

func TestSearchFilters(t *testing.T) {
	f := newFixture(t, Config{})
	yes := true
	tagged := f.send(t, "u1", structures.MessageDraft{Content: "release notes", Tags: []string{"news"}})
	since := f.now
	code := f.send(t, "u2", structures.MessageDraft{Content: "release script", Type: structures.MessageTypeCode})
	file := f.send(t, "u2", structures.MessageDraft{Content: "release build", Attachments: []structures.Attachment{{Name: "b.zip", Size: 10}}})

	tests := []struct {
		name string
		p    Params
		want []string
	}{
		{"author", Params{AuthorID: "u1"}, []string{tagged}},
		{"type", Params{Type: structures.MessageTypeCode}, []string{code}},
		{"tags", Params{Tags: []string{"news"}}, []string{tagged}},
		{"tag text", Params{Query: "#news"}, []string{tagged}},
		{"attachments", Params{HasAttachments: &yes}, []string{file}},
		{"since", Params{Since: &since}, []string{file, code}},
		{"until", Params{Until: &since}, []string{code, tagged}},
		{"no match", Params{Query: "deploy"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.CommunityID = "c1"
			tt.p.SortBy = SortByDate
			page, err := f.adapter.SearchMessages(context.Background(), tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page.Hits))
		})
	}
}

func TestSearchIncludesDeleted(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.send(t, "u1", structures.MessageDraft{Content: "secret"})
	oracle := membership.NewStatic()
	oracle.SetRole("c1", "mod", structures.RoleModerator)
	mods := messages.New(f.repo, oracle, nil, messages.Config{})
	require.NoError(t, mods.DeleteMessage(context.Background(), id, "mod"))

	page, err := f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", Query: "secret"})
	require.NoError(t, err)
	require.Len(t, page.Hits, 1)
	assert.True(t, page.Hits[0].Message.IsDeleted)
}

func TestSearchPagingAndReactions(t *testing.T) {
	f := newFixture(t, Config{MaxCandidates: 4})
	all := []string{}
	for i := 0; i < 5; i++ {
		all = append(all, f.send(t, "u1", structures.MessageDraft{Content: fmt.Sprint("note ", i)}))
	}
	_, err := f.store.AddReaction(context.Background(), all[2], structures.MessageReaction{Emoji: "👍", UserID: "u2"})
	require.NoError(t, err)

	page, err := f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", Query: "note", PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total, "capped to the candidate window")
	assert.Len(t, page.Hits, 3)
	assert.True(t, page.HasMore)

	page, err = f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", Query: "note", PageSize: 3, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{all[1]}, ids(page.Hits))
	assert.False(t, page.HasMore)

	page, err = f.adapter.SearchMessages(context.Background(), Params{CommunityID: "c1", SortBy: SortByReactions})
	require.NoError(t, err)
	assert.Equal(t, all[2], page.Hits[0].Message.ID)
	assert.Equal(t, all[4], page.Hits[1].Message.ID)

	_, err = f.adapter.SearchMessages(context.Background(), Params{Query: "note"})
	assert.ErrorIs(t, err, errors.ErrMissingIdentifier)
}

func TestSubscribeToSearch(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.send(t, "u1", structures.MessageDraft{Content: "hello world"})

	s := f.adapter.SubscribeToSearch(ctx, Params{CommunityID: "c1", Query: "world"})
	defer s.Unsubscribe()

	next := func() []Hit {
		select {
		case v := <-s.Updates():
			return v
		case err := <-s.Errors():
			t.Fatalf("stream error: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("no update")
		}
		return nil
	}

	assert.Len(t, next(), 1)
	f.send(t, "u2", structures.MessageDraft{Content: "world cup"})
	for {
		if hits := next(); len(hits) == 2 {
			break
		}
	}
}
