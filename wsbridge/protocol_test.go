package wsbridge_test

import (
	"encoding/json"

	"maestro/wsbridge"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Envelope", func() {

	It("assigns a fresh request ID to requests", func() {
		env, err := wsbridge.NewRequest(wsbridge.TypeRunQuery, &wsbridge.RunQueryPayload{Query: "q"})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.RequestID).NotTo(BeEmpty())

		other, _ := wsbridge.NewRequest(wsbridge.TypeRunQuery, &wsbridge.RunQueryPayload{Query: "q"})
		Expect(other.RequestID).NotTo(Equal(env.RequestID))
	})

	It("ties responses to the originating request", func() {
		env, err := wsbridge.NewResponse("req-1", wsbridge.TypeRunQueryAck, &wsbridge.RunQueryAckPayload{Accepted: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Type).To(Equal(wsbridge.TypeRunQueryAck))
		Expect(env.RequestID).To(Equal("req-1"))
	})

	It("leaves events without a request ID", func() {
		env, err := wsbridge.NewEvent(wsbridge.TypeRunEvent, &wsbridge.RunEventPayload{RunID: "run-1", EventType: "task_started"})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.RequestID).To(BeEmpty())
	})

	It("round-trips a payload through the wire format", func() {
		env, err := wsbridge.NewRequest(wsbridge.TypeRunQuery, &wsbridge.RunQueryPayload{
			Query:        "find the cheapest flight",
			PlannerModel: "primary",
		})
		Expect(err).NotTo(HaveOccurred())

		data, err := json.Marshal(env)
		Expect(err).NotTo(HaveOccurred())

		var decoded wsbridge.Envelope
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Type).To(Equal(wsbridge.TypeRunQuery))

		var payload wsbridge.RunQueryPayload
		Expect(wsbridge.DecodePayload(&decoded, &payload)).To(Succeed())
		Expect(payload.Query).To(Equal("find the cheapest flight"))
		Expect(payload.PlannerModel).To(Equal("primary"))
	})

	It("builds error envelopes", func() {
		env, err := wsbridge.NewError("req-1", "bad_request", "missing query")
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Type).To(Equal(wsbridge.TypeError))

		var payload wsbridge.ErrorPayload
		Expect(wsbridge.DecodePayload(env, &payload)).To(Succeed())
		Expect(payload.Code).To(Equal("bad_request"))
		Expect(payload.Message).To(Equal("missing query"))
	})

	It("rejects decoding an empty payload", func() {
		env, err := wsbridge.NewEvent(wsbridge.TypeRunComplete, nil)
		Expect(err).NotTo(HaveOccurred())

		var payload wsbridge.RunCompletePayload
		Expect(wsbridge.DecodePayload(env, &payload)).NotTo(Succeed())
	})
})
