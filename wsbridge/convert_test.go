package wsbridge_test

import (
	"maestro/config"
	"maestro/wsbridge"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConfigToInstanceInfo", func() {

	It("converts models, variables, and limits", func() {
		coordinator := &config.CoordinatorConfig{}
		coordinator.Defaults()

		cfg := &config.Config{
			Models: []config.Model{
				{Name: "primary", Provider: "anthropic", AllowedModels: []string{"claude_sonnet_4"}},
			},
			Variables: []config.Variable{
				{Name: "region", Default: "us-east-1"},
				{Name: "api_key", Secret: true},
			},
			Coordinator: coordinator,
		}

		info := wsbridge.ConfigToInstanceInfo(cfg)

		Expect(info.Models).To(HaveLen(1))
		Expect(info.Models[0].Name).To(Equal("primary"))
		Expect(info.Models[0].Provider).To(Equal("anthropic"))
		Expect(info.Models[0].Model).To(Equal("claude_sonnet_4"))

		Expect(info.Variables).To(ConsistOf(
			wsbridge.VariableInfo{Name: "region", Secret: false},
			wsbridge.VariableInfo{Name: "api_key", Secret: true},
		))

		Expect(info.Coordinator).NotTo(BeNil())
		Expect(info.Coordinator.MaxIterations).To(Equal(coordinator.MaxIterations))
		Expect(info.Coordinator.StagnationThreshold).To(Equal(coordinator.StagnationThreshold))
	})

	It("lists every cluster with its internal tools", func() {
		info := wsbridge.ConfigToInstanceInfo(&config.Config{})

		Expect(info.Clusters).To(HaveLen(7))
		names := make([]string, len(info.Clusters))
		for i, c := range info.Clusters {
			names[i] = c.Name
			Expect(c.Description).NotTo(BeEmpty())
		}
		Expect(names).To(ContainElements("WEB", "MATH", "DATA", "TEXT", "COMMUNICATION", "SYSTEM", "CODE"))

		var mathTools []string
		for _, c := range info.Clusters {
			if c.Name == "MATH" {
				for _, t := range c.Tools {
					mathTools = append(mathTools, t.Name)
				}
			}
		}
		Expect(mathTools).To(ContainElement("calculator"))
	})

	It("marks plugins that failed to load", func() {
		cfg := &config.Config{
			Plugins: []config.Plugin{
				{Name: "browser", Source: "github.com/example/browser-plugin", Version: "v1.0.0"},
			},
		}

		info := wsbridge.ConfigToInstanceInfo(cfg)
		Expect(info.Plugins).To(HaveLen(1))
		Expect(info.Plugins[0].Name).To(Equal("browser"))
		Expect(info.Plugins[0].Loaded).To(BeFalse())
	})
})
