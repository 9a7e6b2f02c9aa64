package e2e_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/collab/citest/testutil"
	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
)

var _ = Describe("Event Stream", func() {
	var (
		sse    *testutil.SSEClient
		agents *testutil.AgentManager
	)

	BeforeEach(func() {
		agents = testutil.NewAgentManager(client)
		sse = testServer.SSEClient()
		Expect(sse.Connect(ctx, "/event")).To(Succeed())
	})

	AfterEach(func() {
		sse.Close()
		agents.Cleanup()
	})

	It("should announce the connection first", func() {
		evt, err := sse.WaitForAnyEvent(5 * time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(evt.Type).To(Equal("server.connected"))
	})

	It("should stream an agent's lifecycle and its final message", func() {
		_, err := sse.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		id, err := agents.Spawn(ctx, testutil.SpawnRequest{
			Persona: testutil.UniquePersona("Builder"),
			Message: agent.ReadyMessage("Builder"),
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = sse.WaitForEventWhere("agent.status", 10*time.Second, func(e *testutil.SSEEvent) bool {
			data, err := e.ParseStatusEvent()
			return err == nil && data.AgentID == id && data.To == agent.StatusCompleted
		})
		Expect(err).NotTo(HaveOccurred())

		events := testutil.NewEventMatcher(sse.GetAllEvents())
		Expect(events.HasType("agent.spawned")).To(BeTrue())

		var final *groupchat.Message
		for _, e := range events.FilterType("chat.message") {
			data, err := e.ParseChatEvent()
			Expect(err).NotTo(HaveOccurred())
			if data.Message.Author == id && data.Message.IsFinal() {
				final = &data.Message
			}
		}
		Expect(final).NotTo(BeNil())
		Expect(final.Body).To(Equal("Ready"))
	})

	It("should filter by type prefix", func() {
		filtered := testServer.SSEClient()
		Expect(filtered.Connect(ctx, "/event?type=chat.")).To(Succeed())
		defer filtered.Close()
		_, err := filtered.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		_, err = client.SendMessage(ctx, testutil.MessageRequest{Message: "filtered hello"})
		Expect(err).NotTo(HaveOccurred())

		_, err = filtered.WaitForEvent("chat.message", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(testutil.NewEventMatcher(filtered.GetAllEvents()).HasType("agent.status")).To(BeFalse())
	})
})
