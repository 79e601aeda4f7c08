package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

// MemoryStore is an in-process types.Store used when no DATABASE_URL is
// configured, and by the test suites. It enforces the same uniqueness
// semantics as the postgres schema, including the idempotency ledger.
type MemoryStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]*models.User
	usersByEmail  map[string]uuid.UUID
	connections   map[uuid.UUID][]*models.Connection
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]models.Message
	instructions  map[uuid.UUID][]*models.AgentInstruction
	processed     map[string]struct{}
	tasks         map[uuid.UUID]*models.AgentTask
	embeddings    []*models.VectorEmbedding
}

var _ types.Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         map[uuid.UUID]*models.User{},
		usersByEmail:  map[string]uuid.UUID{},
		connections:   map[uuid.UUID][]*models.Connection{},
		conversations: map[uuid.UUID]*models.Conversation{},
		messages:      map[uuid.UUID][]models.Message{},
		instructions:  map[uuid.UUID][]*models.AgentInstruction{},
		processed:     map[string]struct{}{},
		tasks:         map[uuid.UUID]*models.AgentTask{},
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return types.ErrDuplicate
	}
	user.CreatedAt = time.Now()
	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	for i := range user.Connections {
		conn := user.Connections[i]
		if conn.ID == uuid.Nil {
			conn.ID = uuid.New()
		}
		conn.UserID = user.ID
		s.connections[user.ID] = append(s.connections[user.ID], &conn)
	}
	return nil
}

func (s *MemoryStore) userWithConnections(id uuid.UUID) *models.User {
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	copied := *user
	copied.Connections = nil
	for _, c := range s.connections[id] {
		copied.Connections = append(copied.Connections, *c)
	}
	return &copied
}

func (s *MemoryStore) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user := s.userWithConnections(id); user != nil {
		return user, nil
	}
	return nil, types.ErrNotFound
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, types.ErrNotFound
	}
	return s.userWithConnections(id), nil
}

func (s *MemoryStore) CreateConnection(ctx context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.connections[conn.UserID] {
		if existing.Provider == conn.Provider {
			return types.ErrDuplicate
		}
	}
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	s.connections[conn.UserID] = append(s.connections[conn.UserID], conn)
	return nil
}

func (s *MemoryStore) ConnectionFor(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.connections[userID] {
		if conn.Provider == provider {
			copied := *conn
			return &copied, nil
		}
	}
	return nil, types.ErrNotFound
}

func (s *MemoryStore) UpdateConnection(ctx context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.connections[conn.UserID] {
		if existing.ID == conn.ID {
			copied := *conn
			s.connections[conn.UserID][i] = &copied
			return nil
		}
	}
	return types.ErrNotFound
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	conv.CreatedAt = time.Now()
	copied := *conv
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *MemoryStore) ConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *MemoryStore) LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[conversationID]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) CreateInstruction(ctx context.Context, instr *models.AgentInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if instr.ID == uuid.Nil {
		instr.ID = uuid.New()
	}
	copied := *instr
	s.instructions[instr.UserID] = append(s.instructions[instr.UserID], &copied)
	return nil
}

func (s *MemoryStore) ActiveInstructions(ctx context.Context, userID uuid.UUID, trigger models.TriggerType) ([]models.AgentInstruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AgentInstruction
	for _, instr := range s.instructions[userID] {
		if instr.Active && instr.Trigger == trigger {
			out = append(out, *instr)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateProcessedEvent(ctx context.Context, userID uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s/%s", userID, externalID)
	if _, exists := s.processed[key]; exists {
		return types.ErrDuplicate
	}
	s.processed[key] = struct{}{}
	return nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *models.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) DueTasks(ctx context.Context, now time.Time) ([]models.AgentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AgentTask
	for _, task := range s.tasks {
		if task.Status == models.TaskPending && !task.NotBefore.After(now) {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NotBefore.Before(out[j].NotBefore)
	})
	return out, nil
}

func (s *MemoryStore) TransitionTask(ctx context.Context, id uuid.UUID, next models.TaskStatus, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return types.ErrNotFound
	}
	if err := task.Transition(next); err != nil {
		return err
	}
	if result != "" {
		task.Result = result
	}
	return nil
}

func (s *MemoryStore) CreateEmbedding(ctx context.Context, row *models.VectorEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	copied := *row
	s.embeddings = append(s.embeddings, &copied)
	return nil
}

// Embeddings returns a snapshot of stored embedding rows.
func (s *MemoryStore) Embeddings() []models.VectorEmbedding {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.VectorEmbedding, 0, len(s.embeddings))
	for _, e := range s.embeddings {
		out = append(out, *e)
	}
	return out
}

// Messages returns a snapshot of a conversation's messages.
func (s *MemoryStore) Messages(conversationID uuid.UUID) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out
}

// Tasks returns a snapshot of all tasks.
func (s *MemoryStore) Tasks() []models.AgentTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AgentTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// Conversations returns a snapshot of all conversations.
func (s *MemoryStore) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	return out
}
