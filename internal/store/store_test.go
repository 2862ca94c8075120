package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/margin/internal/clock"
	"github.com/sprite-ai/margin/internal/model"
)

func ann(id string, from, to int) model.Annotation {
	return model.Annotation{ID: id, Type: model.TypeStyle, From: from, To: to, MatchedText: "text", Message: "m"}
}

func TestAddAnalysisSkipsKnownIDs(t *testing.T) {
	st := New()
	st.AddAnalysis("a.md", "style", []model.Annotation{ann("1", 0, 4)})
	st.AddAnalysis("a.md", "passive", []model.Annotation{ann("1", 9, 9), ann("2", 5, 8)})

	active := st.Active("a.md")
	require.Len(t, active, 2)
	assert.Equal(t, 0, active[0].From)
	assert.Equal(t, "passive", st.Mode("a.md"))
}

func TestReplaceActiveKeepsArchive(t *testing.T) {
	st := New()
	st.AddAnalysis("a.md", "style", []model.Annotation{ann("1", 0, 4), ann("2", 5, 8)})

	rec := ann("1", 0, 4)
	rec.Dismissed = true
	st.ArchiveRecords("a.md", []model.Annotation{rec})
	st.ReplaceActive("a.md", []model.Annotation{ann("2", 6, 9)})

	assert.Equal(t, []model.Annotation{ann("2", 6, 9)}, st.Active("a.md"))
	archive := st.Archive("a.md")
	require.Len(t, archive, 1)
	assert.True(t, archive[0].Dismissed)
}

func TestRestoreClearsFlags(t *testing.T) {
	st := New()
	rec := ann("1", 0, 4)
	rec.Applied = true
	st.ArchiveRecords("a.md", []model.Annotation{rec})
	require.Empty(t, st.Active("a.md"))

	st.Restore("a.md", []string{"1"})
	assert.Len(t, st.Active("a.md"), 1)
	assert.Empty(t, st.Archive("a.md"))
}

func TestClearArchive(t *testing.T) {
	st := New()
	st.AddAnalysis("a.md", "", []model.Annotation{ann("1", 0, 4), ann("2", 5, 8)})
	rec := ann("2", 5, 8)
	rec.Dismissed = true
	st.ArchiveRecords("a.md", []model.Annotation{rec})

	assert.Equal(t, 1, st.ClearArchive("a.md"))
	assert.Empty(t, st.Archive("a.md"))
	assert.Len(t, st.Active("a.md"), 1)
}

func TestEmptyPathUsesRootKey(t *testing.T) {
	st := New()
	st.AppendMessage("", model.ChatMessage{ID: "m1", Role: model.RoleUser, Content: "hi"})
	assert.Len(t, st.Messages(RootKey), 1)
}

func TestLinkAnnotationsOnce(t *testing.T) {
	st := New()
	st.AppendMessage("a.md", model.ChatMessage{ID: "m1", Role: model.RoleAssistant})

	require.NoError(t, st.LinkAnnotations("a.md", "m1", []string{"x", "y"}))
	assert.Equal(t, []string{"x", "y"}, st.Messages("a.md")[0].AnnotationIDs)

	err := st.LinkAnnotations("a.md", "m1", []string{"z"})
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.Error(t, st.LinkAnnotations("a.md", "missing", nil))
}

func TestSnapshotShape(t *testing.T) {
	st := New()
	st.AddAnalysis("a.md", "style", []model.Annotation{ann("1", 0, 4)})
	st.AppendMessage("a.md", model.ChatMessage{ID: "m1", Role: model.RoleUser})

	data, err := json.Marshal(st.Snapshot())
	require.NoError(t, err)

	var raw map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw["files"], "a.md")
	assert.Contains(t, raw["sessions"], "a.md")
	assert.Contains(t, string(raw["files"]["a.md"]), `"matchedText":"text"`)
}

func TestOnChangeFires(t *testing.T) {
	st := New()
	calls := 0
	st.OnChange(func() { calls++ })
	st.SetMode("a.md", "style")
	st.AppendMessage("a.md", model.ChatMessage{ID: "m"})
	assert.Equal(t, 2, calls)
}

func TestFilePersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewFilePersister(filepath.Join(t.TempDir(), "nested", "state.json"))

	snap, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Files)

	st := New()
	st.AddAnalysis("a.md", "style", []model.Annotation{ann("1", 0, 4)})
	require.NoError(t, p.Save(ctx, st.Snapshot()))

	loaded, err := Open(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, st.Active("a.md"), loaded.Active("a.md"))
}

func TestFilePersisterRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFilePersister(path).Load(context.Background())
	assert.Error(t, err)
}

func TestRedisPersister(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := NewRedisPersister(ctx, "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer p.Close()

	snap, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Files)

	st := New()
	st.AddAnalysis("a.md", "passive", []model.Annotation{ann("1", 0, 4)})
	require.NoError(t, p.Save(ctx, st.Snapshot()))
	assert.True(t, mr.Exists(DefaultRedisKey))

	loaded, err := Open(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "passive", loaded.Mode("a.md"))
}

func TestRedisPersisterBadURL(t *testing.T) {
	_, err := NewRedisPersister(context.Background(), "not-a-url", "")
	assert.Error(t, err)
}

func TestRedisPersisterWithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPersisterWithClient(client, "custom")
	defer p.Close()

	require.NoError(t, p.Save(context.Background(), New().Snapshot()))
	assert.True(t, mr.Exists("custom"))
}

type countingPersister struct {
	saves int
}

func (p *countingPersister) Name() string { return "memory" }
func (p *countingPersister) Load(context.Context) (Snapshot, error) {
	return emptySnapshot(), nil
}
func (p *countingPersister) Save(context.Context, Snapshot) error {
	p.saves++
	return nil
}

func TestSaverDebounces(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	st := New()
	p := &countingPersister{}
	s := NewSaver(st, p, c, 0, nil)

	st.SetMode("a.md", "style")
	c.Advance(time.Second)
	st.SetMode("a.md", "passive")
	c.Advance(1499 * time.Millisecond)
	assert.Zero(t, p.saves)
	assert.True(t, s.Pending())

	c.Advance(2 * time.Millisecond)
	assert.Equal(t, 1, p.saves)
	assert.NoError(t, s.Err())
}

func TestSaverFlush(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	st := New()
	p := &countingPersister{}
	s := NewSaver(st, p, c, 0, nil)

	st.SetMode("a.md", "style")
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, p.saves)
	assert.False(t, s.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, 1, p.saves)
}
