// Package chat implements the conversation flow shared by every interactive
// surface: menus, template setup and vacancy processing.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/pipeline"
)

// State is where a user is in the conversation.
type State int

const (
	StateIdle State = iota
	StateAwaitingTemplate
	StateAwaitingDescription
	StateAwaitingDescriptionEdit
	StateAwaitingVacancy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTemplate:
		return "awaiting_template"
	case StateAwaitingDescription:
		return "awaiting_description"
	case StateAwaitingDescriptionEdit:
		return "awaiting_description_edit"
	case StateAwaitingVacancy:
		return "awaiting_vacancy"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Input is one user event. Exactly one of Command, Action or Text is
// normally set; Command is the bare command name without the slash.
// Formatted is Text with the sender's formatting kept as HTML; it is used
// for templates and may be empty.
type Input struct {
	UserID    string
	FirstName string
	Text      string
	Formatted string
	Command   string
	Action    string
}

// Button is an inline choice that comes back as Input.Action.
type Button struct {
	Label  string
	Action string
}

// Reply is a message for the user. HTML marks Text as the Telegram HTML subset.
type Reply struct {
	Text    string
	HTML    bool
	Buttons [][]Button
}

// Responder delivers replies for one user and owns a single transient
// status line that Status replaces and ClearStatus removes.
type Responder interface {
	Send(ctx context.Context, r Reply) error
	Status(ctx context.Context, text string) error
	ClearStatus(ctx context.Context) error
}

// Runner produces an announcement from raw vacancy input.
type Runner interface {
	Run(ctx context.Context, userID, input string, progress func(pipeline.Stage)) (model.Announcement, error)
}

type session struct {
	state           State
	pendingTemplate string
}

// Engine is the conversation state machine. It is safe for concurrent use
// across users; callers serialize inputs of a single user.
type Engine struct {
	store  model.TemplateStore
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an Engine over the given store and pipeline.
func New(store model.TemplateStore, runner Runner, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		runner:   runner,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// State reports the current state for userID.
func (e *Engine) State(userID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[userID]; ok {
		return s.state
	}
	return StateIdle
}

func (e *Engine) session(userID string) session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[userID]; ok {
		return *s
	}
	return session{}
}

func (e *Engine) setSession(userID string, s session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.state == StateIdle {
		delete(e.sessions, userID)
		return
	}
	e.sessions[userID] = &s
}

// Handle processes one input and sends the replies through r. Handler
// failures and panics are logged and answered with a generic error message.
func (e *Engine) Handle(ctx context.Context, in Input, r Responder) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("chat handler panicked",
				"user", in.UserID,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			err = r.Send(ctx, Reply{Text: genericErrorText})
		}
	}()

	if err := e.handle(ctx, in, r); err != nil {
		e.logger.Error("handling input failed", "user", in.UserID, "state", e.State(in.UserID), "error", err)
		return r.Send(ctx, Reply{Text: genericErrorText})
	}
	return nil
}

func (e *Engine) handle(ctx context.Context, in Input, r Responder) error {
	if in.Command != "" {
		return e.handleCommand(ctx, in, r)
	}
	if in.Action != "" {
		return e.handleAction(ctx, in, r)
	}
	return e.handleText(ctx, in, r)
}

func (e *Engine) handleCommand(ctx context.Context, in Input, r Responder) error {
	switch strings.ToLower(in.Command) {
	case "start":
		e.setSession(in.UserID, session{})
		return r.Send(ctx, Reply{Text: welcomeText(in.FirstName), HTML: true, Buttons: mainMenu()})
	case "cancel":
		e.setSession(in.UserID, session{})
		return r.Send(ctx, Reply{Text: cancelledText})
	case "generate":
		return e.readyToGenerate(ctx, in.UserID, r)
	case "help":
		return e.handleAction(ctx, Input{UserID: in.UserID, Action: ActionHelp}, r)
	case "template":
		return e.handleAction(ctx, Input{UserID: in.UserID, Action: ActionSetTemplate}, r)
	case "show":
		return e.handleAction(ctx, Input{UserID: in.UserID, Action: ActionViewTemplate}, r)
	case "describe":
		return e.handleAction(ctx, Input{UserID: in.UserID, Action: ActionSetDescription}, r)
	default:
		// Unknown commands are treated as text so a stray slash does not
		// swallow a vacancy.
		return e.handleText(ctx, Input{UserID: in.UserID, FirstName: in.FirstName, Text: "/" + in.Command + " " + in.Text}, r)
	}
}

func (e *Engine) handleAction(ctx context.Context, in Input, r Responder) error {
	switch in.Action {
	case ActionSetTemplate:
		e.setSession(in.UserID, session{state: StateAwaitingTemplate})
		return r.Send(ctx, Reply{Text: askTemplateText, HTML: true})

	case ActionViewTemplate:
		tmpl, ok, err := e.store.GetTemplate(in.UserID)
		if err != nil {
			return fmt.Errorf("view template: %w", err)
		}
		back := [][]Button{{btnBackToMenu}}
		if !ok {
			return r.Send(ctx, Reply{Text: noTemplateText, Buttons: back})
		}
		return r.Send(ctx, Reply{Text: viewTemplateText(tmpl.Text, tmpl.Description), HTML: true, Buttons: back})

	case ActionSetDescription:
		_, ok, err := e.store.GetTemplate(in.UserID)
		if err != nil {
			return fmt.Errorf("check template: %w", err)
		}
		if !ok {
			return r.Send(ctx, Reply{Text: describeNeedsTemplateText, Buttons: [][]Button{{btnSetTemplate}}})
		}
		e.setSession(in.UserID, session{state: StateAwaitingDescriptionEdit})
		return r.Send(ctx, Reply{Text: askDescriptionEditText, HTML: true})

	case ActionHelp:
		return r.Send(ctx, Reply{Text: helpText, HTML: true, Buttons: [][]Button{{btnBackToMenu}}})

	case ActionBackToMenu:
		e.setSession(in.UserID, session{})
		return r.Send(ctx, Reply{Text: menuText, Buttons: mainMenu()})

	case ActionGenerateNow:
		return e.readyToGenerate(ctx, in.UserID, r)

	default:
		e.logger.Warn("unknown action", "user", in.UserID, "action", in.Action)
		return r.Send(ctx, Reply{Text: menuText, Buttons: mainMenu()})
	}
}

func (e *Engine) readyToGenerate(ctx context.Context, userID string, r Responder) error {
	_, ok, err := e.store.GetTemplate(userID)
	if err != nil {
		return fmt.Errorf("check template: %w", err)
	}
	if !ok {
		return r.Send(ctx, Reply{Text: vacancyNeedsTemplateText, Buttons: [][]Button{{btnSetTemplate}}})
	}
	e.setSession(userID, session{state: StateAwaitingVacancy})
	return r.Send(ctx, Reply{Text: readyText, HTML: true})
}

func (e *Engine) handleText(ctx context.Context, in Input, r Responder) error {
	text := strings.TrimSpace(in.Text)
	s := e.session(in.UserID)

	if text == "" {
		return r.Send(ctx, Reply{Text: emptyInputText})
	}

	switch s.state {
	case StateAwaitingTemplate:
		if f := strings.TrimSpace(in.Formatted); f != "" {
			text = f
		}
		e.setSession(in.UserID, session{state: StateAwaitingDescription, pendingTemplate: text})
		return r.Send(ctx, Reply{Text: askDescriptionText})

	case StateAwaitingDescription:
		if err := e.store.SetTemplate(in.UserID, s.pendingTemplate, text); err != nil {
			return fmt.Errorf("save template: %w", err)
		}
		e.setSession(in.UserID, session{})
		e.logger.Info("template saved", "user", in.UserID)
		return r.Send(ctx, Reply{
			Text:    savedText(text),
			HTML:    true,
			Buttons: [][]Button{{btnGenerateNow}, {btnBackToMenu}},
		})

	case StateAwaitingDescriptionEdit:
		e.setSession(in.UserID, session{})
		// UpdateDescription ignores unknown users, so check first.
		_, ok, err := e.store.GetTemplate(in.UserID)
		if err != nil {
			return fmt.Errorf("check template: %w", err)
		}
		if !ok {
			return r.Send(ctx, Reply{Text: describeNeedsTemplateText, Buttons: [][]Button{{btnSetTemplate}}})
		}
		if err := e.store.UpdateDescription(in.UserID, text); err != nil {
			return fmt.Errorf("update description: %w", err)
		}
		return r.Send(ctx, Reply{
			Text:    descriptionUpdatedText(text),
			HTML:    true,
			Buttons: [][]Button{{btnGenerateNow}, {btnBackToMenu}},
		})

	default:
		return e.generate(ctx, in.UserID, text, r)
	}
}

func (e *Engine) generate(ctx context.Context, userID, text string, r Responder) error {
	e.setSession(userID, session{})

	if err := r.Status(ctx, statusProcessing); err != nil {
		e.logger.Warn("status update failed", "user", userID, "error", err)
	}

	a, err := e.runner.Run(ctx, userID, text, func(stage pipeline.Stage) {
		msg := statusGenerating
		if stage == pipeline.StageFetching {
			msg = statusFetching
		}
		if err := r.Status(ctx, msg); err != nil {
			e.logger.Warn("status update failed", "user", userID, "error", err)
		}
	})

	if cerr := r.ClearStatus(ctx); cerr != nil {
		e.logger.Warn("clear status failed", "user", userID, "error", cerr)
	}

	if errors.Is(err, model.ErrNoTemplate) {
		return r.Send(ctx, Reply{Text: vacancyNeedsTemplateText, Buttons: [][]Button{{btnSetTemplate}}})
	}
	if err != nil {
		return fmt.Errorf("generate announcement: %w", err)
	}

	if err := r.Send(ctx, Reply{Text: a.Text, HTML: true}); err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}
	return r.Send(ctx, Reply{Text: doneHintText, HTML: true})
}

// ParseCommand splits a "/name rest" line. ok is false when line is not a
// command. A "@botname" suffix on the command is dropped.
func ParseCommand(line string) (name, rest string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return "", "", false
	}
	name, rest, _ = strings.Cut(line[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}
