package memory_test

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/herald-ai/herald/core/memory"
	"github.com/herald-ai/herald/db"
	models "github.com/herald-ai/herald/dbmodels"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeEmbedder maps text to a deterministic bag-of-bytes vector, so the
// same text always lands on the same point and distinct texts diverge.
type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding provider unavailable")
	}
	vec := make([]float32, 8)
	for i := 0; i < len(text); i++ {
		vec[i%8] += float32(text[i])
	}
	return vec, nil
}

var _ = Describe("Memory store", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
		rows     *db.MemoryStore
		store    *memory.Store
		userID   uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{}
		rows = db.NewMemoryStore()
		store = memory.NewStore(embedder, rows)
		userID = uuid.New()
	})

	Describe("Insert", func() {
		It("stores text and persists a durable row", func() {
			status, err := store.Insert(ctx, userID, "Alice moved to Acme Corp", models.SourceCRMContact, map[string]string{"email": "alice@acme.test"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(memory.StatusStored))

			persisted := rows.Embeddings()
			Expect(persisted).To(HaveLen(1))
			Expect(persisted[0].UserID).To(Equal(userID))
			Expect(persisted[0].Content).To(Equal("Alice moved to Acme Corp"))
			Expect(persisted[0].Source).To(Equal(models.SourceCRMContact))

			vec, err := persisted[0].GetVector()
			Expect(err).NotTo(HaveOccurred())
			Expect(vec).NotTo(BeEmpty())
		})

		It("rejects empty text", func() {
			status, err := store.Insert(ctx, userID, "", models.SourceInteraction, nil)
			Expect(err).To(HaveOccurred())
			Expect(status).To(Equal(memory.StatusSkipped))
		})

		It("degrades to an observable skip when the embedder is down", func() {
			embedder.fail = true
			status, err := store.Insert(ctx, userID, "lost to the void", models.SourceMailboxItem, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(memory.StatusSkipped))
			Expect(rows.Embeddings()).To(BeEmpty())
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			_, err := store.Insert(ctx, userID, "Bob's email address is bob@corp.test", models.SourceCRMContact, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, userID, "Quarterly report is due next Friday", models.SourceMailboxItem, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("retrieves an inserted text by its own content", func() {
			hits := store.Search(ctx, userID, "Bob's email address is bob@corp.test", 1)
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Content).To(Equal("Bob's email address is bob@corp.test"))
			Expect(hits[0].Source).To(Equal(models.SourceCRMContact))
			Expect(hits[0].Similarity).To(BeNumerically("~", 1.0, 0.001))
		})

		It("clamps k to the collection size", func() {
			hits := store.Search(ctx, userID, "Quarterly report is due next Friday", 50)
			Expect(hits).To(HaveLen(2))
		})

		It("is scoped per user", func() {
			Expect(store.Search(ctx, uuid.New(), "Bob's email address is bob@corp.test", 5)).To(BeEmpty())
		})

		It("returns nothing for an empty query or non-positive k", func() {
			Expect(store.Search(ctx, userID, "", 5)).To(BeEmpty())
			Expect(store.Search(ctx, userID, "anything", 0)).To(BeEmpty())
		})

		It("degrades to an empty result when the embedder is down", func() {
			embedder.fail = true
			Expect(store.Search(ctx, userID, "Quarterly report is due next Friday", 5)).To(BeEmpty())
		})
	})
})
