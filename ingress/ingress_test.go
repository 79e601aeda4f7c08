package ingress

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func postEvent(server *Server, body string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

var _ = Describe("Webhook endpoint", func() {
	var server *Server

	BeforeEach(func() {
		server = NewServer(nil, 2)
	})

	It("answers the health check", func() {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("accepts a well-formed event and queues it", func() {
		resp := postEvent(server, `{
			"type": "mailbox-received",
			"address": "ada@example.com",
			"external_id": "msg-1",
			"payload": {"from": "carol@new.test", "subject": "hi"}
		}`)
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		var ev types.Event
		Eventually(server.events).Should(Receive(&ev))
		Expect(ev.Type).To(Equal(models.TriggerMailboxReceived))
		Expect(ev.ExternalID).To(Equal("msg-1"))
		Expect(ev.Payload["from"]).To(Equal("carol@new.test"))
	})

	It("rejects a malformed body", func() {
		resp := postEvent(server, `{{{`)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects an event missing required fields", func() {
		resp := postEvent(server, `{"type": "mailbox-received", "payload": {}}`)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("sheds load when the queue is full", func() {
		event := `{"type": "mailbox-received", "address": "a@b.c", "external_id": "msg-%d"}`
		Expect(postEvent(server, strings.Replace(event, "%d", "1", 1)).StatusCode).To(Equal(http.StatusAccepted))
		Expect(postEvent(server, strings.Replace(event, "%d", "2", 1)).StatusCode).To(Equal(http.StatusAccepted))
		Expect(postEvent(server, strings.Replace(event, "%d", "3", 1)).StatusCode).To(Equal(http.StatusServiceUnavailable))
	})
})

var _ = Describe("Normalize", func() {
	It("flattens an HTML payload into plain text", func() {
		ev := types.Event{
			Type:       models.TriggerMailboxReceived,
			Address:    "ada@example.com",
			ExternalID: "msg-html",
			Payload: map[string]string{
				"html": "<html><body><p>Hello <b>Ada</b>,</p><p>see the doc</p></body></html>",
			},
		}
		Normalize(&ev)

		Expect(ev.Payload).NotTo(HaveKey("html"))
		Expect(ev.Payload["body"]).To(ContainSubstring("Hello Ada"))
		Expect(ev.Payload["body"]).NotTo(ContainSubstring("<p>"))
	})

	It("extracts links from the body into their own field", func() {
		ev := types.Event{
			Payload: map[string]string{
				"body": "The agenda is at https://docs.example.com/agenda and notes at example.org/notes",
			},
		}
		Normalize(&ev)

		Expect(ev.Payload["links"]).To(ContainSubstring("https://docs.example.com/agenda"))
		Expect(ev.Payload["links"]).To(ContainSubstring("example.org/notes"))
	})

	It("leaves a plain body without links untouched", func() {
		ev := types.Event{Payload: map[string]string{"body": "just words"}}
		Normalize(&ev)

		Expect(ev.Payload["body"]).To(Equal("just words"))
		Expect(ev.Payload).NotTo(HaveKey("links"))
	})

	It("tolerates a nil payload", func() {
		ev := types.Event{}
		Normalize(&ev)
		Expect(ev.Payload).NotTo(BeNil())
	})
})

var _ = Describe("Enqueue", func() {
	It("normalizes and queues, reporting back-pressure", func() {
		server := NewServer(nil, 1)

		ok := server.Enqueue(types.Event{
			Type:       models.TriggerCRMUpdate,
			Address:    "ada@example.com",
			ExternalID: "crm-1",
			Payload:    map[string]string{"html": "<b>deal won</b>"},
		})
		Expect(ok).To(BeTrue())
		Expect(server.Enqueue(types.Event{ExternalID: "crm-2"})).To(BeFalse())

		var ev types.Event
		Eventually(server.events).Should(Receive(&ev))
		Expect(ev.Payload["body"]).To(ContainSubstring("deal won"))
	})
})
