package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/collab/citest/testutil"
	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
)

var _ = Describe("Group Chat", func() {
	var agents *testutil.AgentManager

	BeforeEach(func() {
		agents = testutil.NewAgentManager(client)
	})

	AfterEach(func() {
		agents.Cleanup()
	})

	It("should deliver a mention to a busy agent and fold it into its task", func() {
		id, err := agents.Spawn(ctx, testutil.SpawnRequest{
			Persona: "Reviewer",
			Message: "Please review the diff in main.go",
		})
		Expect(err).NotTo(HaveOccurred())
		reviewer, err := client.GetAgent(ctx, id)
		Expect(err).NotTo(HaveOccurred())

		delivery, err := client.SendMessage(ctx, testutil.MessageRequest{
			Author:  groupchat.HumanAuthor,
			Message: "@" + reviewer.ShortID + " also check the error handling",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.DeliveredTo).To(Equal([]string{id}))
		Expect(delivery.Message.Mentions).To(Equal([]string{id}))
		Expect(delivery.Message.Author).To(Equal(groupchat.HumanAuthor))

		res, err := client.Wait(ctx, id, 15*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(agent.StatusCompleted))
		Expect(res.Result.Body).To(Equal("Acknowledged the new chat messages."))

		msgs, err := client.GetMessages(ctx, delivery.Message.Seq)
		Expect(err).NotTo(HaveOccurred())
		var fromReviewer []groupchat.Message
		for _, m := range msgs {
			if m.Author == id {
				fromReviewer = append(fromReviewer, m)
			}
		}
		Expect(len(fromReviewer)).To(BeNumerically(">=", 2))
		Expect(fromReviewer[0].Visibility).To(Equal(groupchat.VisibilityInterim))
		Expect(fromReviewer[0].Body).To(Equal("Starting the review."))
		last := fromReviewer[len(fromReviewer)-1]
		Expect(last.Visibility).To(Equal(groupchat.VisibilityFinal))
		Expect(last.AuthorPersona).To(Equal("Reviewer"))
	})

	It("should report unknown mentions with suggestions", func() {
		persona := testutil.UniquePersona("Tester")
		_, err := agents.Spawn(ctx, testutil.SpawnRequest{
			Persona: persona,
			Message: agent.ReadyMessage(persona),
		})
		Expect(err).NotTo(HaveOccurred())

		delivery, err := client.SendMessage(ctx, testutil.MessageRequest{
			Message: "@nobodyhere please take a look",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.DeliveredTo).To(BeEmpty())
		Expect(delivery.Unknown).To(Equal([]string{"nobodyhere"}))
	})

	It("should drop deliveries to finished agents", func() {
		id, err := agents.Spawn(ctx, testutil.SpawnRequest{
			Persona: testutil.UniquePersona("Builder"),
			Message: agent.ReadyMessage("Builder"),
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Wait(ctx, id, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())

		delivery, err := client.SendMessage(ctx, testutil.MessageRequest{
			Target:  id,
			Message: "one more thing",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.DeliveredTo).To(BeEmpty())
		Expect(delivery.Dropped).To(Equal([]string{id}))
	})

	It("should refuse messages authored by a finished agent", func() {
		id, err := agents.Spawn(ctx, testutil.SpawnRequest{
			Persona: testutil.UniquePersona("Builder"),
			Message: agent.ReadyMessage("Builder"),
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Wait(ctx, id, 10*time.Second)
		Expect(err).NotTo(HaveOccurred())

		_, err = client.SendMessage(ctx, testutil.MessageRequest{Author: id, Message: "late"})
		Expect(err).To(HaveOccurred())
		Expect(err.(*testutil.APIError).StatusCode).To(Equal(http.StatusConflict))
	})

	It("should page messages by sequence", func() {
		first, err := client.SendMessage(ctx, testutil.MessageRequest{Message: "status update one"})
		Expect(err).NotTo(HaveOccurred())
		second, err := client.SendMessage(ctx, testutil.MessageRequest{Message: "status update two"})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Message.Seq).To(BeNumerically(">", first.Message.Seq))

		msgs, err := client.GetMessages(ctx, first.Message.Seq)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).NotTo(BeEmpty())
		Expect(msgs[0].Seq).To(Equal(second.Message.Seq))
		Expect(msgs[0].Body).To(Equal("status update two"))
	})
})
