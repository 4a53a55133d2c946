package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/pipeline"
	"github.com/amishk599/vacancybot/internal/store"
)

type recorder struct {
	mu       sync.Mutex
	replies  []Reply
	statuses []string
	cleared  int
}

func (r *recorder) Send(_ context.Context, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) Status(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
	return nil
}

func (r *recorder) ClearStatus(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return nil
}

func (r *recorder) last() Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return Reply{}
	}
	return r.replies[len(r.replies)-1]
}

type fakeRunner struct {
	stages []pipeline.Stage
	text   string
	err    error
	calls  []string
	panics bool
}

func (f *fakeRunner) Run(_ context.Context, userID, input string, progress func(pipeline.Stage)) (model.Announcement, error) {
	if f.panics {
		panic("runner exploded")
	}
	f.calls = append(f.calls, input)
	for _, s := range f.stages {
		progress(s)
	}
	if f.err != nil {
		return model.Announcement{}, f.err
	}
	return model.Announcement{UserID: userID, Text: f.text}, nil
}

func newEngine(t *testing.T, runner Runner) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(st, runner, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

func flatten(buttons [][]Button) []string {
	var actions []string
	for _, row := range buttons {
		for _, b := range row {
			actions = append(actions, b.Action)
		}
	}
	return actions
}

func TestStart_ShowsMenu(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{})
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", FirstName: "Ann <x>", Command: "start"}, r))

	reply := r.last()
	assert.True(t, reply.HTML)
	assert.Contains(t, reply.Text, "Ann &lt;x&gt;")
	assert.Equal(t, []string{ActionSetTemplate, ActionViewTemplate, ActionSetDescription, ActionHelp}, flatten(reply.Buttons))
}

func TestTemplateFlow_SavesTemplateAndDescription(t *testing.T) {
	e, st := newEngine(t, &fakeRunner{})
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionSetTemplate}, r))
	assert.Equal(t, StateAwaitingTemplate, e.State("1"))

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "Go dev\n💚 Acme 💚", Formatted: "<b>Go dev</b>\n💚 Acme 💚"}, r))
	assert.Equal(t, StateAwaitingDescription, e.State("1"))

	_, ok, _ := st.GetTemplate("1")
	assert.False(t, ok, "template must not be saved before the description arrives")

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "title bold, company between hearts"}, r))
	assert.Equal(t, StateIdle, e.State("1"))

	tmpl, ok, err := st.GetTemplate("1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<b>Go dev</b>\n💚 Acme 💚", tmpl.Text)
	assert.Equal(t, "title bold, company between hearts", tmpl.Description)
	assert.Equal(t, []string{ActionGenerateNow, ActionBackToMenu}, flatten(r.last().Buttons))
}

func TestSetDescription_RequiresTemplate(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{})
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Action: ActionSetDescription}, r))

	assert.Equal(t, StateIdle, e.State("1"))
	assert.Equal(t, []string{ActionSetTemplate}, flatten(r.last().Buttons))
}

func TestSetDescription_UpdatesExisting(t *testing.T) {
	e, st := newEngine(t, &fakeRunner{})
	require.NoError(t, st.SetTemplate("1", "T", "old"))
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Command: "describe"}, r))
	assert.Equal(t, StateAwaitingDescriptionEdit, e.State("1"))

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "new notes"}, r))

	tmpl, _, _ := st.GetTemplate("1")
	assert.Equal(t, "T", tmpl.Text)
	assert.Equal(t, "new notes", tmpl.Description)
	assert.Equal(t, StateIdle, e.State("1"))
}

// forgetfulStore loses every template once forget is set.
type forgetfulStore struct {
	*store.MemoryStore
	forget  bool
	updates int
}

func (s *forgetfulStore) GetTemplate(userID string) (model.Template, bool, error) {
	if s.forget {
		return model.Template{}, false, nil
	}
	return s.MemoryStore.GetTemplate(userID)
}

func (s *forgetfulStore) UpdateDescription(userID, description string) error {
	s.updates++
	return s.MemoryStore.UpdateDescription(userID, description)
}

func TestSetDescription_TemplateGoneBeforeReply(t *testing.T) {
	st := &forgetfulStore{MemoryStore: store.NewMemoryStore()}
	require.NoError(t, st.SetTemplate("1", "T", "old"))
	e := New(st, &fakeRunner{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionSetDescription}, r))
	require.Equal(t, StateAwaitingDescriptionEdit, e.State("1"))

	st.forget = true
	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "new notes"}, r))

	assert.Equal(t, describeNeedsTemplateText, r.last().Text)
	assert.Equal(t, []string{ActionSetTemplate}, flatten(r.last().Buttons))
	assert.Zero(t, st.updates)
	assert.Equal(t, StateIdle, e.State("1"))
}

func TestViewTemplate(t *testing.T) {
	e, st := newEngine(t, &fakeRunner{})
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionViewTemplate}, r))
	assert.Equal(t, noTemplateText, r.last().Text)

	require.NoError(t, st.SetTemplate("1", "<b>T</b>", "a & b"))
	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Command: "show"}, r))
	assert.Contains(t, r.last().Text, "<b>T</b>")
	assert.Contains(t, r.last().Text, "a &amp; b")
	assert.Equal(t, []string{ActionBackToMenu}, flatten(r.last().Buttons))
}

func TestCancel_ClearsState(t *testing.T) {
	e, st := newEngine(t, &fakeRunner{})
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionSetTemplate}, r))
	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "example"}, r))
	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Command: "cancel"}, r))

	assert.Equal(t, StateIdle, e.State("1"))
	assert.Equal(t, cancelledText, r.last().Text)
	_, ok, _ := st.GetTemplate("1")
	assert.False(t, ok)
}

func TestGenerate_WithoutTemplate(t *testing.T) {
	runner := &fakeRunner{err: model.ErrNoTemplate}
	e, _ := newEngine(t, runner)
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Text: "Go developer at Acme"}, r))

	assert.Equal(t, vacancyNeedsTemplateText, r.last().Text)
	assert.Equal(t, []string{ActionSetTemplate}, flatten(r.last().Buttons))
	assert.Equal(t, 1, r.cleared)
}

func TestGenerateCommand_WithoutTemplate(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{})
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Command: "generate"}, r))

	assert.Equal(t, vacancyNeedsTemplateText, r.last().Text)
	assert.Equal(t, StateIdle, e.State("1"))
}

func TestGenerate_ReportsStatusesAndSendsAnnouncement(t *testing.T) {
	runner := &fakeRunner{
		stages: []pipeline.Stage{pipeline.StageFetching, pipeline.StageGenerating},
		text:   "<b>Done</b>",
	}
	e, st := newEngine(t, runner)
	require.NoError(t, st.SetTemplate("1", "T", "D"))
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionGenerateNow}, r))
	assert.Equal(t, StateAwaitingVacancy, e.State("1"))

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Text: "  https://hh.ru/vacancy/1  "}, r))

	assert.Equal(t, []string{statusProcessing, statusFetching, statusGenerating}, r.statuses)
	assert.Equal(t, 1, r.cleared)
	assert.Equal(t, []string{"https://hh.ru/vacancy/1"}, runner.calls)

	require.Len(t, r.replies, 3)
	assert.Equal(t, Reply{Text: "<b>Done</b>", HTML: true}, r.replies[1])
	assert.Equal(t, doneHintText, r.replies[2].Text)
	assert.Equal(t, StateIdle, e.State("1"))
}

func TestGenerate_UnexpectedErrorSendsGenericReply(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{err: errors.New("disk on fire")})
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Text: "vacancy"}, r))

	assert.Equal(t, genericErrorText, r.last().Text)
	assert.Equal(t, 1, r.cleared)
}

func TestHandle_RecoversPanic(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{panics: true})
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Text: "vacancy"}, r))
	assert.Equal(t, genericErrorText, r.last().Text)
}

func TestHandle_EmptyText(t *testing.T) {
	runner := &fakeRunner{}
	e, _ := newEngine(t, runner)
	r := &recorder{}

	require.NoError(t, e.Handle(context.Background(), Input{UserID: "1", Text: "   "}, r))
	assert.Equal(t, emptyInputText, r.last().Text)
	assert.Empty(t, runner.calls)
}

func TestUsersAreIndependent(t *testing.T) {
	e, _ := newEngine(t, &fakeRunner{})
	r := &recorder{}
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, Input{UserID: "1", Action: ActionSetTemplate}, r))
	require.NoError(t, e.Handle(ctx, Input{UserID: "2", Action: ActionHelp}, r))

	assert.Equal(t, StateAwaitingTemplate, e.State("1"))
	assert.Equal(t, StateIdle, e.State("2"))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantRest string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/Generate@vacancy_bot", "generate", "", true},
		{"/describe  title bold ", "describe", "title bold", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, rest, ok := ParseCommand(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_description_edit", StateAwaitingDescriptionEdit.String())
	assert.Equal(t, "state(99)", State(99).String())
}
