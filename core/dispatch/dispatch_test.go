package dispatch_test

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/herald-ai/herald/core/dispatch"
	"github.com/herald-ai/herald/core/memory"
	"github.com/herald-ai/herald/core/registry"
	"github.com/herald-ai/herald/core/types"
	"github.com/herald-ai/herald/db"
	models "github.com/herald-ai/herald/dbmodels"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeCapability struct {
	name     string
	provider models.Provider
	required []string

	execute  func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error)
	calls    int
	lastCred types.Credential
}

func (f *fakeCapability) Definition() types.ToolDefinition {
	props := map[string]jsonschema.Definition{}
	for _, r := range f.required {
		props[r] = jsonschema.Definition{Type: jsonschema.String}
	}
	return types.ToolDefinition{
		Name:       types.ToolName(f.name),
		Properties: props,
		Required:   f.required,
	}
}

func (f *fakeCapability) Provider() models.Provider {
	return f.provider
}

func (f *fakeCapability) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	f.calls++
	f.lastCred = cred
	if f.execute != nil {
		return f.execute(cred, params)
	}
	return types.CapabilityResult{Result: "done"}, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	refreshed := *conn
	refreshed.AccessToken = "fresh-token"
	return &refreshed, nil
}

type fixedEmbedder struct{ fail bool }

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	vec := make([]float32, 4)
	for i := 0; i < len(text); i++ {
		vec[i%4] += float32(text[i])
	}
	return vec, nil
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		store      *db.MemoryStore
		capability *fakeCapability
		reg        *registry.Registry
		user       *models.User
		conv       *models.Conversation
	)

	newUser := func(providers ...models.Provider) *models.User {
		u := &models.User{Email: "ada@example.com", Name: "Ada"}
		for _, p := range providers {
			u.Connections = append(u.Connections, models.Connection{Provider: p, AccessToken: "stale-token", RefreshToken: "refresh"})
		}
		Expect(store.CreateUser(ctx, u)).To(Succeed())
		loaded, err := store.UserByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		return loaded
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = db.NewMemoryStore()
		capability = &fakeCapability{
			name:     "create_crm_contact",
			provider: models.ProviderCRM,
			required: []string{"email"},
		}
		reg = registry.New(capability)
		user = newUser(models.ProviderCRM)
		conv = &models.Conversation{UserID: user.ID, Origin: models.ConversationOriginInteractive}
		Expect(store.CreateConversation(ctx, conv)).To(Succeed())
	})

	call := func(name, args string) types.ToolCall {
		return types.ToolCall{Name: name, Arguments: args}
	}

	It("appends exactly one terminal assistant message, whatever happens", func() {
		d := dispatch.New(reg, store)

		d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
		d.Dispatch(ctx, user, conv, call("no_such_action", `{}`))
		d.Dispatch(ctx, user, conv, call("create_crm_contact", `not json`))

		messages := store.Messages(conv.ID)
		Expect(messages).To(HaveLen(3))
		for _, msg := range messages {
			Expect(msg.Role).To(Equal(models.RoleAssistant))
			Expect(msg.Content).NotTo(BeEmpty())
		}
	})

	It("apologizes by name for an unknown action", func() {
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, user, conv, call("launch_rocket", `{}`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeUnknownAction))
		Expect(outcome.Message).To(ContainSubstring(`"launch_rocket"`))
		Expect(capability.calls).To(Equal(0))
	})

	It("refuses an action whose provider is not connected", func() {
		stranger := newUserWithoutConnections(ctx, store)
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, stranger, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeNotConnected))
		Expect(outcome.Message).To(ContainSubstring("crm"))
		Expect(capability.calls).To(Equal(0))
	})

	It("rejects unparsable arguments without executing", func() {
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{{{`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeInvalidArguments))
		Expect(capability.calls).To(Equal(0))
	})

	It("names the first missing required parameter", func() {
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{}`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeMissingParameter))
		Expect(outcome.Message).To(ContainSubstring(`"email"`))
		Expect(capability.calls).To(Equal(0))
	})

	It("treats an empty string as missing for a required parameter", func() {
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":""}`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeMissingParameter))
	})

	It("executes and surfaces the capability's summary", func() {
		capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
			Expect(params["email"]).To(Equal("bob@corp.test"))
			return types.CapabilityResult{Result: "Created CRM contact bob@corp.test."}, nil
		}
		d := dispatch.New(reg, store)

		outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
		Expect(outcome.Kind).To(Equal(dispatch.OutcomeSuccess))
		Expect(outcome.Message).To(Equal("Created CRM contact bob@corp.test."))
		Expect(capability.calls).To(Equal(1))
		Expect(capability.lastCred.AccessToken).To(Equal("stale-token"))

		messages := store.Messages(conv.ID)
		Expect(messages).To(HaveLen(1))
		Expect(messages[0].ToolCallName).To(Equal("create_crm_contact"))
	})

	Describe("typed failures", func() {
		It("maps each failure kind to its own apology", func() {
			d := dispatch.New(reg, store)

			for kind, fragment := range map[types.FailureKind]string{
				types.FailureRateLimited: "rate limited",
				types.FailureNotFound:    "not found",
				types.FailureTransport:   "service error",
			} {
				capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
					return types.CapabilityResult{}, &types.CapabilityError{Kind: kind}
				}
				outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
				Expect(outcome.Kind).To(Equal(dispatch.OutcomeFailed))
				Expect(outcome.Message).To(ContainSubstring(fragment))
			}
		})

		It("asks the user to reconnect when no refresher is configured", func() {
			capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
				return types.CapabilityResult{}, &types.CapabilityError{Kind: types.FailureCredentialExpired}
			}
			d := dispatch.New(reg, store)

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeFailed))
			Expect(outcome.Message).To(ContainSubstring("reconnect"))
			Expect(capability.calls).To(Equal(1))
		})
	})

	Describe("credential refresh", func() {
		It("refreshes exactly once and retries with the new token", func() {
			capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
				if cred.AccessToken == "stale-token" {
					return types.CapabilityResult{}, &types.CapabilityError{Kind: types.FailureCredentialExpired}
				}
				return types.CapabilityResult{Result: "done with fresh token"}, nil
			}
			refresher := &fakeRefresher{}
			d := dispatch.New(reg, store, dispatch.WithRefresher(refresher))

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeSuccess))
			Expect(outcome.Message).To(Equal("done with fresh token"))
			Expect(refresher.calls).To(Equal(1))
			Expect(capability.calls).To(Equal(2))
			Expect(capability.lastCred.AccessToken).To(Equal("fresh-token"))

			conn, err := store.ConnectionFor(ctx, user.ID, models.ProviderCRM)
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.AccessToken).To(Equal("fresh-token"))
		})

		It("does not retry a second expiry after a successful refresh", func() {
			capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
				return types.CapabilityResult{}, &types.CapabilityError{Kind: types.FailureCredentialExpired}
			}
			refresher := &fakeRefresher{}
			d := dispatch.New(reg, store, dispatch.WithRefresher(refresher))

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeFailed))
			Expect(refresher.calls).To(Equal(1))
			Expect(capability.calls).To(Equal(2))
		})

		It("fails when the refresh itself fails", func() {
			capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
				return types.CapabilityResult{}, &types.CapabilityError{Kind: types.FailureCredentialExpired}
			}
			refresher := &fakeRefresher{err: errors.New("refresh endpoint down")}
			d := dispatch.New(reg, store, dispatch.WithRefresher(refresher))

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeFailed))
			Expect(refresher.calls).To(Equal(1))
			Expect(capability.calls).To(Equal(1))
		})
	})

	Describe("side-effect hooks", func() {
		It("records a stored memory status after a successful action", func() {
			mem := memory.NewStore(&fixedEmbedder{}, store)
			d := dispatch.New(reg, store, dispatch.WithMemory(mem))

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeSuccess))
			Expect(outcome.MemoryStatus).To(Equal(memory.StatusStored))
			Expect(store.Embeddings()).To(HaveLen(1))
			Expect(store.Embeddings()[0].Source).To(Equal(models.SourceInteraction))
		})

		It("records a skipped memory status when the embedder is down", func() {
			mem := memory.NewStore(&fixedEmbedder{fail: true}, store)
			d := dispatch.New(reg, store, dispatch.WithMemory(mem))

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeSuccess))
			Expect(outcome.MemoryStatus).To(Equal(memory.StatusSkipped))
			Expect(store.Embeddings()).To(BeEmpty())
		})

		It("schedules a pending follow-up task when the result asks for one", func() {
			capability.execute = func(cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
				return types.CapabilityResult{
					Result:   "Sent the proposal.",
					FollowUp: "Check in two days whether the proposal got a reply",
				}, nil
			}
			d := dispatch.New(reg, store)

			outcome := d.Dispatch(ctx, user, conv, call("create_crm_contact", `{"email":"bob@corp.test"}`))
			Expect(outcome.Kind).To(Equal(dispatch.OutcomeSuccess))
			Expect(outcome.TaskID).NotTo(BeNil())

			tasks := store.Tasks()
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].Status).To(Equal(models.TaskPending))
			Expect(tasks[0].Description).To(Equal("Check in two days whether the proposal got a reply"))
			Expect(tasks[0].ConversationID).NotTo(BeNil())
			Expect(*tasks[0].ConversationID).To(Equal(conv.ID))
		})
	})
})

func newUserWithoutConnections(ctx context.Context, store *db.MemoryStore) *models.User {
	u := &models.User{Email: "bare@example.com", Name: "Bare"}
	Expect(store.CreateUser(ctx, u)).To(Succeed())
	loaded, err := store.UserByID(ctx, u.ID)
	Expect(err).NotTo(HaveOccurred())
	return loaded
}
