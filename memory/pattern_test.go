package memory_test

import (
	"fmt"

	"maestro/memory"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakePersister records pattern store calls in memory.
type fakePersister struct {
	saved   map[string]memory.Pattern
	deleted []string
	loaded  []memory.Pattern
	loadErr error
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[string]memory.Pattern)}
}

func (f *fakePersister) SavePattern(p memory.Pattern) error {
	f.saved[p.TaskType] = p
	return nil
}

func (f *fakePersister) LoadPatterns() ([]memory.Pattern, error) {
	return f.loaded, f.loadErr
}

func (f *fakePersister) DeletePattern(taskType string) error {
	f.deleted = append(f.deleted, taskType)
	return nil
}

var _ = Describe("Classify", func() {
	It("maps descriptions to task types by keyword", func() {
		Expect(memory.Classify("Search Google for the current weather")).To(Equal("web_search"))
		Expect(memory.Classify("Login to the admin portal")).To(Equal("form_login"))
		Expect(memory.Classify("Submit the registration")).To(Equal("form_fill"))
		Expect(memory.Classify("Extract the price table")).To(Equal("data_extract"))
		Expect(memory.Classify("Click the checkout button")).To(Equal("web_navigation"))
		Expect(memory.Classify("Calculate the monthly total")).To(Equal("math"))
	})

	It("prefers earlier rules when keywords overlap", func() {
		// "find" (web_search) outranks "click" (web_navigation)
		Expect(memory.Classify("find the link and click it")).To(Equal("web_search"))
	})

	It("falls back to other", func() {
		Expect(memory.Classify("do something unusual")).To(Equal("other"))
	})
})

var _ = Describe("Memory", func() {

	Describe("Record", func() {
		It("tracks usage per task type", func() {
			m := memory.New()
			m.Record("math", []string{"calculator(2+2)"})
			m.Record("math", []string{"calculator(3+3)"})

			Expect(m.Len()).To(Equal(1))
			Expect(m.Usage("math")).To(Equal(2))
			Expect(m.Usage("web_search")).To(BeZero())
		})

		It("keeps only the most recent examples up to the cap", func() {
			m := memory.New(memory.WithCaps(10, 2))
			m.Record("math", []string{"first"})
			m.Record("math", []string{"second"})
			m.Record("math", []string{"third"})

			Expect(m.FindSimilar("calculate it")).To(Equal([]string{"third"}))
			Expect(m.Usage("math")).To(Equal(3))
		})

		It("does not alias the caller's action slice", func() {
			m := memory.New()
			actions := []string{"calculator(2+2)"}
			m.Record("math", actions)
			actions[0] = "mutated"

			Expect(m.FindSimilar("compute the value")).To(Equal([]string{"calculator(2+2)"}))
		})
	})

	Describe("eviction", func() {
		It("evicts the least used entry when the table overflows", func() {
			m := memory.New(memory.WithCaps(2, 5))
			m.Record("math", []string{"a"})
			m.Record("math", []string{"b"})
			m.Record("web_search", []string{"c"})
			m.Record("data_extract", []string{"d"})

			Expect(m.Len()).To(Equal(2))
			Expect(m.Usage("math")).To(Equal(2))
			Expect(m.Usage("web_search")).To(BeZero())
		})

		It("breaks usage ties by evicting the oldest entry", func() {
			m := memory.New(memory.WithCaps(2, 5))
			m.Record("math", []string{"a"})
			m.Record("web_search", []string{"b"})
			m.Record("data_extract", []string{"c"})

			Expect(m.Usage("math")).To(BeZero())
			Expect(m.Usage("web_search")).To(Equal(1))
			Expect(m.Usage("data_extract")).To(Equal(1))
		})
	})

	Describe("FindSimilar", func() {
		It("returns nil when nothing matches", func() {
			m := memory.New()
			Expect(m.FindSimilar("calculate the total")).To(BeNil())
		})

		It("returns a copy the caller cannot mutate", func() {
			m := memory.New()
			m.Record("math", []string{"calculator(2+2)"})

			hint := m.FindSimilar("compute it")
			hint[0] = "mutated"
			Expect(m.FindSimilar("compute it")).To(Equal([]string{"calculator(2+2)"}))
		})
	})

	Describe("Types", func() {
		It("orders task types by usage, most used first", func() {
			m := memory.New()
			m.Record("web_search", []string{"a"})
			m.Record("math", []string{"b"})
			m.Record("math", []string{"c"})

			Expect(m.Types()).To(Equal([]string{"math", "web_search"}))
		})
	})

	Describe("persistence", func() {
		It("loads stored patterns eagerly", func() {
			p := newFakePersister()
			p.loaded = []memory.Pattern{
				{TaskType: "math", Examples: [][]string{{"calculator(2+2)"}}, UsageCount: 4},
			}

			m := memory.New(memory.WithPersister(p))
			Expect(m.Usage("math")).To(Equal(4))
			Expect(m.FindSimilar("compute it")).To(Equal([]string{"calculator(2+2)"}))
		})

		It("starts empty when loading fails", func() {
			p := newFakePersister()
			p.loadErr = fmt.Errorf("backend down")

			m := memory.New(memory.WithPersister(p))
			Expect(m.Len()).To(BeZero())
		})

		It("saves on record and deletes on eviction", func() {
			p := newFakePersister()
			m := memory.New(memory.WithPersister(p), memory.WithCaps(2, 5))

			m.Record("math", []string{"a"})
			m.Record("math", []string{"b"})
			m.Record("web_search", []string{"c"})
			m.Record("data_extract", []string{"d"})

			Expect(p.saved).To(HaveKey("math"))
			Expect(p.saved["math"].UsageCount).To(Equal(2))
			Expect(p.deleted).To(Equal([]string{"web_search"}))
		})
	})
})
