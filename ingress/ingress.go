// Package ingress receives webhook-style external events, normalizes
// their payloads, and fans them out to the proactive trigger runner.
// Delivery upstream is at-least-once; the engine's idempotency ledger
// absorbs redelivery, so the ingress can ack early and process async.
package ingress

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
	"jaytaylor.com/html2text"
	"mvdan.cc/xurls/v2"

	"github.com/herald-ai/herald/core/trigger"
	"github.com/herald-ai/herald/core/types"
)

type Server struct {
	app    *fiber.App
	runner *trigger.Runner
	events chan types.Event
}

func NewServer(runner *trigger.Runner, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 128
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		runner: runner,
		events: make(chan types.Event, queueSize),
	}

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	s.app.Post("/webhooks/events", s.handleEvent)

	return s
}

func (s *Server) handleEvent(c *fiber.Ctx) error {
	var ev types.Event
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed event"})
	}
	if ev.Type == "" || ev.Address == "" || ev.ExternalID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type, address and external_id are required"})
	}

	Normalize(&ev)

	select {
	case s.events <- ev:
		return c.SendStatus(fiber.StatusAccepted)
	default:
		// back-pressure: let the sender redeliver later
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
}

// Normalize rewrites an event payload into plain text: HTML bodies are
// flattened, and links found in the body are extracted into their own
// field so directives and memory stay readable.
func Normalize(ev *types.Event) {
	if ev.Payload == nil {
		ev.Payload = map[string]string{}
	}

	if html := ev.Payload["html"]; html != "" {
		text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
		if err == nil {
			ev.Payload["body"] = text
			delete(ev.Payload, "html")
		} else {
			xlog.Warn("HTML body normalization failed", "event", ev.ExternalID, "error", err)
		}
	}

	if body := ev.Payload["body"]; body != "" {
		if links := xurls.Relaxed().FindAllString(body, -1); len(links) > 0 {
			ev.Payload["links"] = strings.Join(links, " ")
		}
	}
}

// Start runs n worker goroutines draining the event queue and then
// serves HTTP on addr. It blocks until the context is canceled or the
// listener fails.
func (s *Server) Start(ctx context.Context, addr string, workers int) error {
	if workers <= 0 {
		workers = 4
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev := <-s.events:
					report := s.runner.HandleEvent(ctx, ev)
					xlog.Debug("Event processed", "event", ev.ExternalID, "state", report.State)
				}
			}
		})
	}

	group.Go(func() error {
		return s.app.Listen(addr)
	})

	group.Go(func() error {
		<-ctx.Done()
		return s.app.Shutdown()
	})

	return group.Wait()
}

// Enqueue feeds an event directly into the worker queue, bypassing
// HTTP. Used by in-process collaborators.
func (s *Server) Enqueue(ev types.Event) bool {
	Normalize(&ev)
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}
