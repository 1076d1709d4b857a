package store_test

import (
	"maestro/memory"
	"maestro/store"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryRunStore", func() {
	var runs *store.MemoryRunStore

	BeforeEach(func() {
		runs = store.NewMemoryRunStore()
	})

	Describe("runs", func() {
		It("creates a run in running state", func() {
			id, err := runs.CreateRun("find the cheapest flight", "{}")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			listed, err := runs.ListRuns(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].Status).To(Equal("running"))
			Expect(listed[0].Query).To(Equal("find the cheapest flight"))
			Expect(listed[0].FinishedAt).To(BeNil())
		})

		It("stamps a finish time on terminal statuses", func() {
			id, _ := runs.CreateRun("q", "{}")
			Expect(runs.UpdateRunStatus(id, "done")).To(Succeed())

			listed, _ := runs.ListRuns(10)
			Expect(listed[0].Status).To(Equal("done"))
			Expect(listed[0].FinishedAt).NotTo(BeNil())
		})

		It("records the final answer", func() {
			id, _ := runs.CreateRun("q", "{}")
			Expect(runs.SetRunAnswer(id, "42")).To(Succeed())

			listed, _ := runs.ListRuns(10)
			Expect(listed[0].Answer).NotTo(BeNil())
			Expect(*listed[0].Answer).To(Equal("42"))
		})

		It("rejects updates for unknown runs", func() {
			Expect(runs.UpdateRunStatus("ghost", "done")).NotTo(Succeed())
			Expect(runs.SetRunAnswer("ghost", "x")).NotTo(Succeed())
		})

		It("lists newest runs first, bounded by the limit", func() {
			runs.CreateRun("first", "{}")
			runs.CreateRun("second", "{}")
			runs.CreateRun("third", "{}")

			listed, err := runs.ListRuns(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(2))
			Expect(listed[0].Query).To(Equal("third"))
			Expect(listed[1].Query).To(Equal("second"))
		})
	})

	Describe("tasks", func() {
		var runID string

		BeforeEach(func() {
			runID, _ = runs.CreateRun("q", "{}")
		})

		It("requires an existing run", func() {
			_, err := runs.CreateTask("ghost", "desc")
			Expect(err).To(HaveOccurred())
		})

		It("returns a run's tasks in creation order", func() {
			runs.CreateTask(runID, "first")
			runs.CreateTask(runID, "second")

			tasks, err := runs.GetTasksByRun(runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(2))
			Expect(tasks[0].Description).To(Equal("first"))
			Expect(tasks[1].Description).To(Equal("second"))
			Expect(tasks[0].Status).To(Equal("pending"))
		})

		It("stamps a finish time on terminal statuses", func() {
			id, _ := runs.CreateTask(runID, "t")
			Expect(runs.UpdateTaskStatus(id, "failed")).To(Succeed())

			tasks, _ := runs.GetTasksByRun(runID)
			Expect(tasks[0].Status).To(Equal("failed"))
			Expect(tasks[0].FinishedAt).NotTo(BeNil())
		})
	})

	Describe("subtasks", func() {
		var taskID string

		BeforeEach(func() {
			runID, _ := runs.CreateRun("q", "{}")
			taskID, _ = runs.CreateTask(runID, "t")
		})

		It("requires an existing task", func() {
			_, err := runs.CreateSubtask("ghost", "desc", `["WEB"]`)
			Expect(err).To(HaveOccurred())
		})

		It("returns a task's subtasks in creation order", func() {
			runs.CreateSubtask(taskID, "first", `["WEB"]`)
			runs.CreateSubtask(taskID, "second", `["MATH"]`)

			subtasks, err := runs.GetSubtasksByTask(taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(subtasks).To(HaveLen(2))
			Expect(subtasks[0].Description).To(Equal("first"))
			Expect(subtasks[0].ClustersJSON).To(Equal(`["WEB"]`))
			Expect(subtasks[1].Description).To(Equal("second"))
		})

		It("updates status and keeps the summary when none is given", func() {
			id, _ := runs.CreateSubtask(taskID, "s", `["WEB"]`)
			summary := "found it"
			Expect(runs.UpdateSubtaskStatus(id, "done", &summary)).To(Succeed())
			Expect(runs.UpdateSubtaskStatus(id, "done", nil)).To(Succeed())

			subtasks, _ := runs.GetSubtasksByTask(taskID)
			Expect(subtasks[0].ResultSummary).NotTo(BeNil())
			Expect(*subtasks[0].ResultSummary).To(Equal("found it"))
		})
	})
})

var _ = Describe("MemoryEventStore", func() {
	It("returns events for one run in insertion order", func() {
		events := store.NewMemoryEventStore()
		events.StoreEvent("run-1", "run_started", `{"query":"q"}`)
		events.StoreEvent("run-2", "run_started", `{"query":"other"}`)
		events.StoreEvent("run-1", "task_started", `{"task":"t"}`)

		out, err := events.GetEventsByRun("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0].EventType).To(Equal("run_started"))
		Expect(out[1].EventType).To(Equal("task_started"))
	})

	It("returns nothing for an unknown run", func() {
		events := store.NewMemoryEventStore()
		out, err := events.GetEventsByRun("ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})

var _ = Describe("MemoryPatternStore", func() {
	It("round-trips patterns in save order", func() {
		patterns := store.NewMemoryPatternStore()
		Expect(patterns.SavePattern(memory.Pattern{TaskType: "math", UsageCount: 1})).To(Succeed())
		Expect(patterns.SavePattern(memory.Pattern{TaskType: "web_search", UsageCount: 2})).To(Succeed())
		Expect(patterns.SavePattern(memory.Pattern{TaskType: "math", UsageCount: 3})).To(Succeed())

		loaded, err := patterns.LoadPatterns()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveLen(2))
		Expect(loaded[0].TaskType).To(Equal("math"))
		Expect(loaded[0].UsageCount).To(Equal(3))
		Expect(loaded[1].TaskType).To(Equal("web_search"))
	})

	It("deletes by task type", func() {
		patterns := store.NewMemoryPatternStore()
		patterns.SavePattern(memory.Pattern{TaskType: "math"})
		patterns.SavePattern(memory.Pattern{TaskType: "web_search"})
		Expect(patterns.DeletePattern("math")).To(Succeed())

		loaded, _ := patterns.LoadPatterns()
		Expect(loaded).To(HaveLen(1))
		Expect(loaded[0].TaskType).To(Equal("web_search"))
	})
})

var _ = Describe("NewMemoryBundle", func() {
	It("wires all three stores", func() {
		bundle := store.NewMemoryBundle()
		Expect(bundle.Runs).NotTo(BeNil())
		Expect(bundle.Events).NotTo(BeNil())
		Expect(bundle.Patterns).NotTo(BeNil())
		Expect(bundle.Close()).To(Succeed())
	})
})
