package wsbridge

import (
	"maestro/aitools"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("schema conversion", func() {
	It("carries nested object requirements onto the wire", func() {
		schema := aitools.Schema{
			Type: aitools.TypeObject,
			Properties: aitools.PropertyMap{
				"filters": {
					Type: aitools.TypeObject,
					Properties: aitools.PropertyMap{
						"field": {Type: aitools.TypeString},
						"value": {Type: aitools.TypeString},
					},
					Required: []string{"field"},
				},
			},
			Required: []string{"filters"},
		}

		ts := convertSchema(schema)
		Expect(ts).NotTo(BeNil())
		Expect(ts.Required).To(Equal([]string{"filters"}))
		Expect(ts.Properties["filters"].Required).To(Equal([]string{"field"}))
		Expect(ts.Properties["filters"].Properties).To(HaveKey("field"))
	})
})
