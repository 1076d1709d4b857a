package agent_test

import (
	"strings"

	"maestro/agent"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SharedContext", func() {

	Describe("AddExchange", func() {
		It("drops the oldest exchange when the window is full", func() {
			c := agent.NewSharedContext(2)
			c.AddExchange("first?", "one")
			c.AddExchange("second?", "two")
			c.AddExchange("third?", "three")

			snapshot := c.Snapshot()
			Expect(snapshot).NotTo(ContainSubstring("first?"))
			Expect(snapshot).To(ContainSubstring("second?"))
			Expect(snapshot).To(ContainSubstring("third?"))
		})

		It("falls back to the default window capacity", func() {
			c := agent.NewSharedContext(0)
			for i := 0; i < agent.DefaultContextWindow+1; i++ {
				c.AddExchange("q", "a")
			}
			Expect(strings.Count(c.Snapshot(), "Q: q")).To(Equal(agent.DefaultContextWindow))
		})
	})

	Describe("RecordActions", func() {
		It("tracks page movement from successful web actions", func() {
			c := agent.NewSharedContext(3)
			c.RecordActions([]agent.ActionRecord{
				{Tool: "browser_navigate", Input: `{"url": "https://example.com"}`, Output: "ok", OK: true},
				{Tool: "browser_navigate", Input: `{"url": "https://example.com/pricing"}`, Output: "ok", OK: true},
				{Tool: "browser_navigate", Input: `{"url": "https://example.com"}`, Output: "ok", OK: true},
			})

			Expect(c.CurrentLocation).To(Equal("https://example.com"))
			Expect(c.VisitedPages).To(Equal([]string{"https://example.com", "https://example.com/pricing"}))
		})

		It("ignores failed actions beyond the last-action signature", func() {
			c := agent.NewSharedContext(3)
			c.RecordActions([]agent.ActionRecord{
				{Tool: "browser_navigate", Input: `{"url": "https://broken.example"}`, Output: "timeout", OK: false},
			})

			Expect(c.LastAction).To(Equal(`browser_navigate({"url": "https://broken.example"})`))
			Expect(c.CurrentLocation).To(BeEmpty())
			Expect(c.VisitedPages).To(BeEmpty())
			Expect(c.ExtractedData).To(BeEmpty())
		})

		It("keeps short successful outputs per tool", func() {
			c := agent.NewSharedContext(3)
			c.RecordActions([]agent.ActionRecord{
				{Tool: "calculator", Input: `{"expression": "2+2"}`, Output: "4", OK: true},
				{Tool: "get_text", Input: "{}", Output: strings.Repeat("x", 500), OK: true},
			})

			Expect(c.ExtractedData).To(HaveKeyWithValue("calculator", "4"))
			Expect(c.ExtractedData).NotTo(HaveKey("get_text"))
		})
	})

	Describe("Snapshot", func() {
		It("renders the external state for the planner", func() {
			c := agent.NewSharedContext(3)
			c.RecordActions([]agent.ActionRecord{
				{Tool: "browser_navigate", Input: `{"url": "https://example.com"}`, Output: "ok", OK: true},
			})
			c.AddExchange("what next?", "evaluate the page")

			snapshot := c.Snapshot()
			Expect(snapshot).To(ContainSubstring("## Current State"))
			Expect(snapshot).To(ContainSubstring("Current location: https://example.com"))
			Expect(snapshot).To(ContainSubstring("## Recent Exchanges"))
			Expect(snapshot).To(ContainSubstring("Q: what next?"))
		})

		It("truncates long exchanges", func() {
			c := agent.NewSharedContext(3)
			c.AddExchange(strings.Repeat("p", 300), "short")

			Expect(c.Snapshot()).To(ContainSubstring(strings.Repeat("p", 200) + "..."))
			Expect(c.Snapshot()).NotTo(ContainSubstring(strings.Repeat("p", 201)))
		})
	})
})
