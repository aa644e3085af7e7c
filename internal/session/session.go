// Package session coordinates the lifecycle of the active conversation: lazy
// creation on the first submission, auto-save of every completed turn, and
// resumption of a stored conversation into the agent runtime.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/scoutd/scout/internal/agent"
	"github.com/scoutd/scout/internal/logger"
	"github.com/scoutd/scout/internal/store"
)

// FSM states of the coordinator.
type FSMState stateless.State

var (
	StateIdle      FSMState = "Idle"      // no conversation bound
	StateActive    FSMState = "Active"    // conversation bound, auto-save on
	StateReplaying FSMState = "Replaying" // history fetched, handing off to the runtime
)

// FSM triggers.
type FSMTrigger stateless.Trigger

var (
	TriggerBind       FSMTrigger = "Bind"
	TriggerReplay     FSMTrigger = "Replay"
	TriggerReplayDone FSMTrigger = "ReplayDone"
	TriggerReset      FSMTrigger = "Reset"
)

// ErrReplyNotSaved wraps a persistence failure that happened after the
// runtime already produced a reply. The reply is still usable; the turn is
// simply not on disk, and the coordinator does not retry.
var ErrReplyNotSaved = errors.New("assistant reply not persisted")

// Runtime is the agent boundary the coordinator drives. Replay primes it
// with a reconstructed message sequence; Send produces one settled reply per
// submitted turn.
type Runtime interface {
	Replay(turns []agent.Turn)
	Send(ctx context.Context, text string, onDelta func(string)) (string, error)
}

// Store is the subset of the persistence gateway the coordinator uses.
type Store interface {
	CreateConversation(ctx context.Context, title string, metadata store.Metadata) (*store.Conversation, error)
	Conversation(ctx context.Context, id string) (*store.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]*store.Message, error)
	AddMessage(ctx context.Context, conversationID, role, content string, metadata store.Metadata) (*store.Message, error)
}

// Reply is the outcome of one completed turn. SaveErr, when non-nil, wraps
// ErrReplyNotSaved and is non-fatal: Content is still the full reply.
type Reply struct {
	ConversationID string
	Content        string
	SaveErr        error
}

// Coordinator binds at most one conversation at a time and keeps the store
// and the agent runtime in step. The mutex guards the bound id and the state
// machine only; a turn in flight keeps writing under the id it captured at
// submission, so a concurrent Reset unbinds without rolling back that turn.
type Coordinator struct {
	store   Store
	runtime Runtime

	mu             sync.Mutex
	fsm            *stateless.StateMachine
	conversationID string
}

// New creates a coordinator in the Idle state.
func New(st Store, rt Runtime) *Coordinator {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerBind, StateActive).
		Permit(TriggerReplay, StateReplaying).
		Ignore(TriggerReset)

	fsm.Configure(StateActive).
		Permit(TriggerReplay, StateReplaying).
		Permit(TriggerReset, StateIdle)

	fsm.Configure(StateReplaying).
		Permit(TriggerReplayDone, StateActive).
		Permit(TriggerReset, StateIdle)

	return &Coordinator{store: st, runtime: rt, fsm: fsm}
}

// Send runs one turn: it lazily creates and binds a conversation on the
// first submission, appends the human message before the runtime is
// invoked, and appends the settled assistant reply exactly once after the
// stream completes. A create or human-append failure aborts the turn before
// the runtime sees it. A failed assistant append is surfaced through
// Reply.SaveErr, never by dropping the reply.
func (c *Coordinator) Send(ctx context.Context, text string, onDelta func(string)) (*Reply, error) {
	id, err := c.bind(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := c.store.AddMessage(ctx, id, store.RoleHuman, text, nil); err != nil {
		return nil, fmt.Errorf("save human message: %w", err)
	}

	content, err := c.runtime.Send(ctx, text, onDelta)
	if err != nil {
		return nil, fmt.Errorf("agent runtime: %w", err)
	}

	reply := &Reply{ConversationID: id, Content: content}
	if _, err := c.store.AddMessage(ctx, id, store.RoleAI, content, nil); err != nil {
		logger.L.Warn("assistant reply not persisted", "conversation_id", id, "error", err)
		reply.SaveErr = fmt.Errorf("%w: %v", ErrReplyNotSaved, err)
	}
	return reply, nil
}

// bind returns the bound conversation id, creating and binding a fresh
// conversation when none is bound yet.
func (c *Coordinator) bind(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conversationID != "" {
		return c.conversationID, nil
	}
	conv, err := c.store.CreateConversation(ctx, "", nil)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	if err := c.fsm.Fire(TriggerBind); err != nil {
		return "", fmt.Errorf("bind conversation: %w", err)
	}
	c.conversationID = conv.ID
	logger.L.Info("bound new conversation", "id", conv.ID)
	return conv.ID, nil
}

// Resume reconstructs a stored conversation's message sequence, replays it
// into the runtime, and binds the conversation so subsequent turns auto-save
// to it. Role mapping follows storage: "human" stays a human turn, anything
// else becomes an assistant turn. An unknown id returns store.ErrNotFound
// before any state changes.
func (c *Coordinator) Resume(ctx context.Context, conversationID string) error {
	if _, err := c.store.Conversation(ctx, conversationID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fsm.Fire(TriggerReplay); err != nil {
		return fmt.Errorf("resume conversation: %w", err)
	}

	msgs, err := c.store.Messages(ctx, conversationID)
	if err != nil {
		c.abortReplay()
		return fmt.Errorf("load messages: %w", err)
	}

	turns := make([]agent.Turn, len(msgs))
	for i, m := range msgs {
		role := store.RoleAI
		if m.Role == store.RoleHuman {
			role = store.RoleHuman
		}
		turns[i] = agent.Turn{Role: role, Content: m.Content}
	}
	c.runtime.Replay(turns)

	c.conversationID = conversationID
	if err := c.fsm.Fire(TriggerReplayDone); err != nil {
		return fmt.Errorf("resume conversation: %w", err)
	}
	logger.L.Info("resumed conversation", "id", conversationID, "messages", len(msgs))
	return nil
}

func (c *Coordinator) abortReplay() {
	c.conversationID = ""
	if err := c.fsm.Fire(TriggerReset); err != nil {
		logger.L.Warn("fsm reset after failed replay", "error", err)
	}
}

// Reset unbinds the active conversation and returns to Idle. No data is
// deleted; a turn already in flight commits normally under its captured id.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conversationID = ""
	if err := c.fsm.Fire(TriggerReset); err != nil {
		logger.L.Warn("fsm reset", "error", err)
	}
}

// ConversationID returns the bound conversation id, if any.
func (c *Coordinator) ConversationID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID, c.conversationID != ""
}

// State returns the coordinator's current FSM state.
func (c *Coordinator) State() FSMState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState().(FSMState)
}
