package cluster_test

import (
	"maestro/aitools"
	"maestro/cluster"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubTool struct {
	name string
}

func (t *stubTool) ToolName() string                 { return t.name }
func (t *stubTool) ToolDescription() string          { return "stub " + t.name }
func (t *stubTool) ToolPayloadSchema() aitools.Schema { return aitools.Schema{} }
func (t *stubTool) Call(params string) string        { return "" }

var _ = Describe("Registry", func() {
	var registry *cluster.Registry

	BeforeEach(func() {
		registry = cluster.NewRegistry()
	})

	Describe("Register", func() {
		It("places a tool in multiple clusters", func() {
			err := registry.Register(&stubTool{name: "fetch"}, cluster.Web, cluster.Communication)
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.Count(cluster.Web)).To(Equal(1))
			Expect(registry.Count(cluster.Communication)).To(Equal(1))
		})

		It("ignores duplicate registration in the same cluster", func() {
			tool := &stubTool{name: "fetch"}
			Expect(registry.Register(tool, cluster.Web)).To(Succeed())
			Expect(registry.Register(tool, cluster.Web)).To(Succeed())
			Expect(registry.Count(cluster.Web)).To(Equal(1))
		})

		It("rejects an empty cluster list", func() {
			err := registry.Register(&stubTool{name: "fetch"})
			Expect(err).To(MatchError(cluster.ErrConfiguration))
		})

		It("rejects an unknown cluster", func() {
			err := registry.Register(&stubTool{name: "fetch"}, cluster.Name("CHAOS"))
			Expect(err).To(MatchError(cluster.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("CHAOS"))
		})
	})

	Describe("Tools", func() {
		BeforeEach(func() {
			Expect(registry.Register(&stubTool{name: "calculator"}, cluster.Math)).To(Succeed())
			Expect(registry.Register(&stubTool{name: "stats"}, cluster.Math, cluster.Data)).To(Succeed())
			Expect(registry.Register(&stubTool{name: "csv_preview"}, cluster.Data)).To(Succeed())
		})

		It("preserves registration order within a cluster", func() {
			tools := registry.Tools(cluster.Math)
			Expect(toolNames(tools)).To(Equal([]string{"calculator", "stats"}))
		})

		It("deduplicates across clusters in first-encountered order", func() {
			tools := registry.Tools(cluster.Math, cluster.Data)
			Expect(toolNames(tools)).To(Equal([]string{"calculator", "stats", "csv_preview"}))
		})

		It("returns nothing for an unknown cluster", func() {
			Expect(registry.Tools(cluster.Name("CHAOS"))).To(BeEmpty())
		})
	})

	Describe("ClustersOf", func() {
		It("returns the tool's clusters sorted", func() {
			Expect(registry.Register(&stubTool{name: "stats"}, cluster.Math, cluster.Data)).To(Succeed())
			Expect(registry.ClustersOf("stats")).To(Equal([]cluster.Name{cluster.Data, cluster.Math}))
		})

		It("returns nil for an unregistered tool", func() {
			Expect(registry.ClustersOf("ghost")).To(BeNil())
		})
	})

	Describe("Reset", func() {
		BeforeEach(func() {
			Expect(registry.Register(&stubTool{name: "stats"}, cluster.Math, cluster.Data)).To(Succeed())
			Expect(registry.Register(&stubTool{name: "calculator"}, cluster.Math)).To(Succeed())
		})

		It("clears everything when no clusters are named", func() {
			registry.Reset()
			Expect(registry.Count(cluster.Math)).To(BeZero())
			Expect(registry.Count(cluster.Data)).To(BeZero())
			Expect(registry.ClustersOf("stats")).To(BeNil())
		})

		It("clears only the named cluster and repairs the reverse index", func() {
			registry.Reset(cluster.Math)
			Expect(registry.Count(cluster.Math)).To(BeZero())
			Expect(registry.Count(cluster.Data)).To(Equal(1))
			Expect(registry.ClustersOf("stats")).To(Equal([]cluster.Name{cluster.Data}))
			Expect(registry.ClustersOf("calculator")).To(BeNil())
		})
	})
})

var _ = Describe("Definitions", func() {
	It("orders cluster names alphabetically", func() {
		Expect(cluster.Names()).To(Equal([]cluster.Name{
			cluster.Code,
			cluster.Communication,
			cluster.Data,
			cluster.Math,
			cluster.System,
			cluster.Text,
			cluster.Web,
		}))
	})

	It("validates only defined names", func() {
		Expect(cluster.Valid(cluster.Web)).To(BeTrue())
		Expect(cluster.Valid(cluster.Name("CHAOS"))).To(BeFalse())
	})

	It("describes every defined cluster", func() {
		for _, name := range cluster.Names() {
			Expect(cluster.Description(name)).NotTo(BeEmpty())
		}
		Expect(cluster.Description(cluster.Name("CHAOS"))).To(BeEmpty())
	})
})

var _ = Describe("Suggest", func() {
	It("ranks the cluster with the most keyword hits first", func() {
		ranked := cluster.Suggest("calculate the sum and average of these numbers")
		Expect(ranked).NotTo(BeEmpty())
		Expect(ranked[0]).To(Equal(cluster.Math))
	})

	It("returns multiple clusters when the text spans concerns", func() {
		ranked := cluster.Suggest("read the csv file and navigate to the website")
		Expect(ranked).To(ContainElements(cluster.Data, cluster.Web))
	})

	It("returns nothing for text with no keyword hits", func() {
		Expect(cluster.Suggest("zzzz")).To(BeEmpty())
	})
})

func toolNames(tools []aitools.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.ToolName()
	}
	return out
}
