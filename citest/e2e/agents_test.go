package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/collab/citest/testutil"
	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

var _ = Describe("Agent Workflows", func() {
	var agents *testutil.AgentManager

	BeforeEach(func() {
		agents = testutil.NewAgentManager(client)
	})

	AfterEach(func() {
		agents.Cleanup()
	})

	Describe("Session", func() {
		It("should expose the running orchestrator", func() {
			info, err := client.GetSession(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.OrchestratorID).NotTo(BeEmpty())

			orch, err := client.GetAgent(ctx, info.OrchestratorID)
			Expect(err).NotTo(HaveOccurred())
			Expect(orch.Role).To(Equal(agent.RoleOrchestrator))
			Expect(orch.Status).To(Equal(agent.StatusRunning))
		})
	})

	Describe("Spawn and Wait", func() {
		It("should complete a subagent that replies without tools", func() {
			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona: testutil.UniquePersona("Builder"),
				Message: agent.ReadyMessage("Builder"),
			})
			Expect(err).NotTo(HaveOccurred())

			res, err := client.Wait(ctx, id, 10*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TimedOut).To(BeFalse())
			Expect(res.Status).To(Equal(agent.StatusCompleted))
			Expect(res.Result).NotTo(BeNil())
			Expect(res.Result.Body).To(Equal("Ready"))
			Expect(res.Result.Visibility).To(Equal(groupchat.VisibilityFinal))

			out, err := client.AgentOutput(ctx, id, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.LastMessage).To(Equal("Ready"))
		})

		It("should list spawned agents with their parent", func() {
			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona: testutil.UniquePersona("Builder"),
				Message: agent.ReadyMessage("Builder"),
			})
			Expect(err).NotTo(HaveOccurred())

			list, err := client.ListAgents(ctx)
			Expect(err).NotTo(HaveOccurred())

			info, _ := client.GetSession(ctx)
			var found *agent.Summary
			for i := range list {
				if list[i].ID == id {
					found = &list[i]
				}
			}
			Expect(found).NotTo(BeNil(), "Spawned agent should be in list")
			Expect(found.ParentID).To(Equal(info.OrchestratorID))
			Expect(found.Role).To(Equal(agent.RoleSubagent))
		})

		It("should reject a spawn without a message", func() {
			_, err := client.Spawn(ctx, testutil.SpawnRequest{Persona: "Empty"})
			Expect(err).To(HaveOccurred())
			apiErr, ok := err.(*testutil.APIError)
			Expect(ok).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 404 for an unknown agent", func() {
			_, err := client.Wait(ctx, "no-such-agent", 0)
			Expect(err).To(HaveOccurred())
			Expect(err.(*testutil.APIError).StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Policy Enforcement", func() {
		It("should deny a tool on the planner's denylist and let it report back", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event?type=policy.")).To(Succeed())
			defer sse.Close()

			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona:  "Planner",
				Message:  "Apply the fix to main.go",
				ToolDeny: testutil.Patterns("apply_patch"),
			})
			Expect(err).NotTo(HaveOccurred())

			res, err := client.Wait(ctx, id, 10*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(agent.StatusCompleted))
			Expect(res.Result).NotTo(BeNil())
			Expect(res.Result.Body).To(ContainSubstring("denied"))

			out, err := client.AgentOutput(ctx, id, 0)
			Expect(err).NotTo(HaveOccurred())
			var toolEvents []string
			for _, ev := range out.ToolEvents {
				toolEvents = append(toolEvents, ev.Text)
			}
			Expect(toolEvents).To(ContainElement(ContainSubstring("denied: apply_patch")))

			evt, err := sse.WaitForEventWhere("policy.denied", 5*time.Second, func(e *testutil.SSEEvent) bool {
				data, err := e.ParseDeniedEvent()
				return err == nil && data.AgentID == id
			})
			Expect(err).NotTo(HaveOccurred())
			data, _ := evt.ParseDeniedEvent()
			Expect(data.Attempt).To(Equal(permission.ToolAttempt("apply_patch")))
			Expect(data.Pattern).To(Equal("apply_patch"))

			Expect(testServer.MockLLM.RulesMatched()).To(ContainElements("planner-patches", "report-denial"))
		})

		It("should apply inherited and overridden lists in policy checks", func() {
			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona:  testutil.UniquePersona("Planner"),
				Message:  agent.ReadyMessage("Planner"),
				ToolDeny: testutil.Patterns("apply_patch"),
			})
			Expect(err).NotTo(HaveOccurred())

			d, err := client.CheckPolicy(ctx, id, permission.KindTool, "apply_patch")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Admit).To(BeFalse())

			d, err = client.CheckPolicy(ctx, id, permission.KindCommand, "git status && git push origin main")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Admit).To(BeFalse())
			Expect(d.Pattern).To(Equal("git push *"))
			Expect(d.Segment).To(Equal("git push origin main"))

			d, err = client.CheckPolicy(ctx, id, permission.KindCommand, "git status")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Admit).To(BeTrue())
		})
	})

	Describe("Close", func() {
		It("should force-close a busy agent", func() {
			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona: "Reviewer",
				Message: "Please review the diff",
			})
			Expect(err).NotTo(HaveOccurred())

			status, err := client.CloseAgent(ctx, id, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(agent.StatusClosed))

			res, err := client.Wait(ctx, id, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(agent.StatusClosed))
		})

		It("should leave a finished agent as it was", func() {
			id, err := agents.Spawn(ctx, testutil.SpawnRequest{
				Persona: testutil.UniquePersona("Builder"),
				Message: agent.ReadyMessage("Builder"),
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Wait(ctx, id, 10*time.Second)
			Expect(err).NotTo(HaveOccurred())

			status, err := client.CloseAgent(ctx, id, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(agent.StatusCompleted))
		})
	})
})
