package config_test

import (
	"maestro/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadAndValidate (end-to-end)", func() {

	Context("single-file config", func() {
		It("succeeds with a complete valid config", func() {
			hcl := fullBaseHCL() + `
coordinator {
  planner_temperature = 0.5
}

storage {
  backend = "memory"
}
`
			dir, _ := writeFixture("all.hcl", hcl)
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Models).To(HaveLen(1))
			Expect(cfg.CustomTools).To(HaveLen(1))
			Expect(cfg.Coordinator.PlannerTemperature).To(Equal(0.5))
			Expect(cfg.Storage.Backend).To(Equal("memory"))
		})
	})

	Context("multi-file directory", func() {
		It("succeeds loading separate files", func() {
			dir := writeFixtures(map[string]string{
				"variables.hcl": minimalVarsHCL(),
				"models.hcl":    minimalModelHCL(),
				"tools.hcl":     minimalToolHCL(),
				"coordinator.hcl": `
coordinator {
  max_iterations = 10
}
`,
			})

			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Models).To(HaveLen(1))
			Expect(cfg.CustomTools).To(HaveLen(1))
			Expect(cfg.Coordinator.MaxIterations).To(Equal(10))
		})
	})

	Context("variable validation errors", func() {
		It("rejects a secret variable with a default", func() {
			hcl := minimalVarsHCL() + `
variable "bad_secret" {
  secret  = true
  default = "oops"
}
` + minimalModelHCL()

			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("secret"))
			Expect(err.Error()).To(ContainSubstring("bad_secret"))
		})
	})

	Context("model validation errors", func() {
		It("rejects an unsupported provider", func() {
			hcl := minimalVarsHCL() + `
model "bad" {
  provider       = "llama"
  allowed_models = ["llama_3"]
  api_key        = vars.test_api_key
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Unsupported provider"))
		})
	})

	Context("coordinator validation errors", func() {
		It("rejects an out-of-range planner temperature", func() {
			hcl := minimalVarsHCL() + `
coordinator {
  planner_temperature = 1.5
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("planner_temperature"))
		})
	})

	Context("cluster validation errors", func() {
		It("rejects a custom tool naming an unknown cluster", func() {
			hcl := minimalVarsHCL() + `
tool "odd" {
  implements = plugins.bash.bash
  clusters   = ["GALAXY"]
  command    = "echo hi"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown cluster"))
			Expect(err.Error()).To(ContainSubstring("GALAXY"))
		})
	})

	Context("plugin warnings with valid config", func() {
		It("succeeds but populates PluginWarnings", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + `
plugin "missing_plugin" {
  source  = "github.com/fake/plugin"
  version = "v1.0.0"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.PluginWarnings).NotTo(BeEmpty())
			Expect(cfg.PluginWarnings[0]).To(ContainSubstring("missing_plugin"))
		})
	})

	Context("custom tool internal name conflict", func() {
		It("rejects a custom tool named after an internal tool", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + `
tool "weather" {
  implements  = "plugins.http.get"
  clusters    = ["WEB"]
  description = "Get weather"
  url         = "https://api.weather.com"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			cfg, err := config.Load(dir)
			Expect(err).NotTo(HaveOccurred())

			// Rename the custom tool to conflict with an internal tool
			cfg.CustomTools[0].Name = "bash"
			err = cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("conflicts with internal tool"))
		})
	})

	Context("complete config with all block types", func() {
		It("handles vars, models, custom tools, coordinator, and storage together", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + `
tool "weather" {
  implements  = "plugins.http.get"
  clusters    = ["WEB", "DATA"]
  description = "Get weather data"
  url         = "https://api.weather.com/forecast"
}

coordinator {
  planner_temperature  = 0.4
  stagnation_threshold = 4
}

storage {
  backend = "sqlite"
  path    = "/tmp/maestro-test.db"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Models).To(HaveLen(1))
			Expect(cfg.CustomTools).To(HaveLen(1))
			Expect(cfg.CustomTools[0].Clusters).To(ConsistOf("WEB", "DATA"))
			Expect(cfg.Coordinator.StagnationThreshold).To(Equal(4))
			Expect(cfg.Storage.Path).To(Equal("/tmp/maestro-test.db"))
		})
	})
})
