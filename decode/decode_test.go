package decode_test

import (
	"maestro/decode"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Decoder", func() {

	decoderFor := func(fields ...string) *decode.Decoder {
		return &decode.Decoder{ExpectedFields: fields}
	}

	Describe("direct tier", func() {
		It("parses a clean JSON object", func() {
			r, err := decoderFor("clusters").Decode(`{"clusters": ["WEB"], "reasoning": "web task"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceDirect))
			Expect(r.Value["clusters"]).To(ConsistOf("WEB"))
		})

		It("tolerates surrounding whitespace", func() {
			r, err := decoderFor("done").Decode("\n\n  {\"done\": true}  \n")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceDirect))
		})

		It("accepts any object when no fields are expected", func() {
			r, err := decoderFor().Decode(`{"whatever": 1}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value).To(HaveKey("whatever"))
		})

		It("rejects a valid object missing every expected field", func() {
			_, err := decoderFor("tasks").Decode(`{"unrelated": 1}`)
			Expect(err).To(HaveOccurred())
		})

		It("accepts an object carrying at least one expected field", func() {
			r, err := decoderFor("clusters", "reasoning").Decode(`{"reasoning": "partial"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value).To(HaveKey("reasoning"))
		})
	})

	Describe("fenced tier", func() {
		It("extracts JSON from a ```json fence", func() {
			raw := "Here is my selection:\n```json\n{\"clusters\": [\"MATH\"]}\n```\nDone."
			r, err := decoderFor("clusters").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceFenced))
		})

		It("extracts JSON from a bare fence", func() {
			raw := "```\n{\"instruction\": \"go\"}\n```"
			r, err := decoderFor("instruction").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceFenced))
		})

		It("handles an unterminated fence by taking the remainder", func() {
			raw := "```json\n{\"verdict\": \"rewrite\"}"
			r, err := decoderFor("verdict").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["verdict"]).To(Equal("rewrite"))
		})
	})

	Describe("scan tier", func() {
		It("finds an embedded object inside prose", func() {
			raw := `I think the right split is {"tasks": ["one", "two"]} based on the query.`
			r, err := decoderFor("tasks").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceScan))
			Expect(r.Value["tasks"]).To(HaveLen(2))
		})

		It("skips earlier objects missing expected fields", func() {
			raw := `Metadata: {"note": "x"}. Decision: {"completed": "done", "reason": "all set"}.`
			r, err := decoderFor("completed").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["completed"]).To(Equal("done"))
		})

		It("handles nested objects and braces inside strings", func() {
			raw := `Result: {"instruction": "print {hello}", "extra": {"depth": 2}}`
			r, err := decoderFor("instruction").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["instruction"]).To(Equal("print {hello}"))
		})
	})

	Describe("repair tier", func() {
		It("appends one missing closing brace", func() {
			r, err := decoderFor("achieved").Decode(`{"achieved": true, "reason": "complete"`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceRepair))
			Expect(r.Value["achieved"]).To(Equal(true))
		})

		It("appends two missing closing braces", func() {
			r, err := decoderFor("outer").Decode(`{"outer": {"inner": 1`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceRepair))
		})

		It("gives up beyond two missing braces", func() {
			_, err := decoderFor("a").Decode(`{"a": {"b": {"c": {"d": 1`)
			Expect(err).To(HaveOccurred())
		})

		It("quotes bare keys", func() {
			r, err := decoderFor("completed").Decode(`{completed: "done", reason: "fine"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceRepair))
			Expect(r.Value["completed"]).To(Equal("done"))
		})

		It("closes an unterminated string", func() {
			r, err := decoderFor("reason").Decode(`{"reason": "the page timed out`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["reason"]).To(Equal("the page timed out"))
		})

		It("leaves JSON literals unquoted", func() {
			r, err := decoderFor("done").Decode(`{done: true, extra: null`)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["done"]).To(Equal(true))
		})
	})

	Describe("heuristic tier", func() {
		It("extracts labeled fields from plain text", func() {
			raw := "completed: done\nreason: everything checked out"
			r, err := decoderFor("completed", "reason").Decode(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceHeuristic))
			Expect(r.Value).To(HaveKey("completed"))
		})

		It("recognizes cluster names mentioned in prose", func() {
			r, err := decoderFor("clusters").Decode("You will need MATH and DATA tools for this.")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Provenance).To(Equal(decode.ProvenanceHeuristic))
			Expect(r.Value["clusters"]).To(ConsistOf("MATH", "DATA"))
		})

		It("defaults the cluster selection to WEB", func() {
			r, err := decoderFor("clusters").Decode("whatever tools seem right")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["clusters"]).To(ConsistOf("WEB"))
		})

		It("reads a negative outcome from sentiment", func() {
			r, err := decoderFor("achieved").Decode("The lookup failed, the record is missing.")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value["achieved"]).To(Equal(false))
		})

		It("is skipped when no fields are expected", func() {
			_, err := decoderFor().Decode("completed: done")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("failure", func() {
		It("reports every tier tried", func() {
			_, err := decoderFor("tasks").Decode("I cannot answer that.")
			Expect(err).To(HaveOccurred())

			failure, ok := err.(*decode.Failure)
			Expect(ok).To(BeTrue())
			Expect(failure.Tried).To(ContainElements(
				decode.ProvenanceDirect,
				decode.ProvenanceFenced,
				decode.ProvenanceScan,
				decode.ProvenanceRepair,
				decode.ProvenanceHeuristic,
			))
			Expect(failure.Raw).To(Equal("I cannot answer that."))
		})

		It("omits the heuristic tier without expectations", func() {
			_, err := decoderFor().Decode("no json here")
			failure, ok := err.(*decode.Failure)
			Expect(ok).To(BeTrue())
			Expect(failure.Tried).NotTo(ContainElement(decode.ProvenanceHeuristic))
		})
	})
})
