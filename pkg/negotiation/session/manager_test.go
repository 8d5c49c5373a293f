package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/colabsync/colabsync/pkg/colabsync"
	"github.com/colabsync/colabsync/pkg/configuration"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/negotiation/project"
	"github.com/colabsync/colabsync/pkg/progress"
	"github.com/colabsync/colabsync/pkg/prompting"
	"github.com/colabsync/colabsync/pkg/resource"
	"github.com/colabsync/colabsync/pkg/transport"
)

// managerTestTimeout bounds waits in manager tests.
const managerTestTimeout = 5 * time.Second

// testConfiguration returns a configuration suitable for tests.
func testConfiguration() *configuration.Configuration {
	result := configuration.Default()
	result.Negotiation.ResponseTimeout = managerTestTimeout
	result.Negotiation.AcceptanceTimeout = managerTestTimeout
	result.Negotiation.ArchiveTimeout = managerTestTimeout
	result.Negotiation.PollInterval = 10 * time.Millisecond
	result.Transfer.ChunkSize = 512
	return result
}

// results collects incoming negotiation outcomes.
type results struct {
	lock     sync.Mutex
	outcomes []negotiation.Outcome
}

// record implements ResultHandler.
func (r *results) record(_ string, outcome negotiation.Outcome) {
	r.lock.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.lock.Unlock()
}

// last returns the most recent outcome, if any.
func (r *results) last() (negotiation.Outcome, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.outcomes) == 0 {
		return negotiation.Outcome{}, false
	}
	return r.outcomes[len(r.outcomes)-1], true
}

// startManager creates a manager on a new endpoint and serves it until the
// test ends.
func startManager(t *testing.T, network *transport.Network, name string, options ManagerOptions) *Manager {
	t.Helper()
	if options.Configuration == nil {
		options.Configuration = testConfiguration()
	}
	if options.TemporaryDirectory == "" {
		options.TemporaryDirectory = t.TempDir()
	}
	manager := NewManager(network.Endpoint(name, nil), options)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return manager
}

// eventually waits for a condition to hold.
func eventually(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(managerTestTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// invite hosts a session on the host manager and invites the peer.
func invite(t *testing.T, host *Manager, peer string) (*Session, negotiation.Outcome) {
	t.Helper()
	hosted, err := host.Host(0)
	if err != nil {
		t.Fatal("unable to host session:", err)
	}
	outcome, err := host.Invite(peer)
	if err != nil {
		t.Fatal("unable to invite peer:", err)
	}
	return hosted, outcome
}

// TestInvitation tests a complete session negotiation.
func TestInvitation(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	peerResults := &results{}
	peer := startManager(t, network, "bob", ManagerOptions{
		Options:  Options{FavoriteColor: 0},
		OnResult: peerResults.record,
	})

	hosted, outcome := invite(t, host, "bob")
	if outcome.Status != negotiation.StatusOK {
		t.Fatal("unexpected host outcome:", outcome)
	}

	// The favorite color is taken by the host, so the lowest free color is
	// assigned.
	if user, ok := hosted.User("bob"); !ok || user.Color != 1 {
		t.Error("participant missing from roster or with unexpected color:", user)
	}

	// Verify the participant's view.
	eventually(t, "participant session", func() bool {
		return peer.Session() != nil
	})
	joined := peer.Session()
	if joined.ID() != hosted.ID() || joined.Host() != "alice" || joined.IsHost() {
		t.Error("participant session mismatch")
	}
	if user, ok := joined.User("bob"); !ok || user.Color != 1 {
		t.Error("participant roster lacks participant")
	}
	eventually(t, "participant outcome", func() bool {
		_, ok := peerResults.last()
		return ok
	})
	if result, _ := peerResults.last(); result.Status != negotiation.StatusOK {
		t.Error("unexpected participant outcome:", result)
	}
	if host.Registry().Len() != 0 {
		t.Error("host negotiation still registered")
	}
}

// TestInvitationDeclined tests that a declined invitation cancels both sides.
func TestInvitationDeclined(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	peerResults := &results{}
	prompter := &prompting.Scripted{Responses: []string{"no"}}
	peer := startManager(t, network, "bob", ManagerOptions{
		Options:  Options{Prompter: prompter},
		OnResult: peerResults.record,
	})

	hosted, outcome := invite(t, host, "bob")
	if outcome.Status != negotiation.StatusRemoteCancel {
		t.Error("unexpected host outcome:", outcome)
	}
	if len(hosted.Participants()) != 0 {
		t.Error("declining participant added to roster")
	}
	eventually(t, "participant outcome", func() bool {
		_, ok := peerResults.last()
		return ok
	})
	if result, _ := peerResults.last(); result.Status != negotiation.StatusCancel {
		t.Error("unexpected participant outcome:", result)
	}
	if peer.Session() != nil {
		t.Error("participant joined despite declining")
	}
}

// TestInvitationCanceledAfterStart tests that a participant whose session has
// started doesn't consider itself joined if the host cancels before
// confirming.
func TestInvitationCanceledAfterStart(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	peerResults := &results{}
	peer := startManager(t, network, "bob", ManagerOptions{OnResult: peerResults.record})
	network.SetInterceptor(func(message *transport.Message) bool {
		if message.Kind == KindStarted {
			for _, state := range host.Registry().List() {
				state.LocalCancel("", true)
			}
		}
		return true
	})

	hosted, outcome := invite(t, host, "bob")
	if outcome.Status != negotiation.StatusCancel {
		t.Error("unexpected host outcome:", outcome)
	}
	if _, ok := hosted.User("bob"); ok {
		t.Error("participant added to roster")
	}
	eventually(t, "participant outcome", func() bool {
		_, ok := peerResults.last()
		return ok
	})
	if outcome, _ := peerResults.last(); outcome.Status != negotiation.StatusRemoteCancel {
		t.Error("unexpected participant outcome:", outcome)
	}
	if peer.Session() != nil {
		t.Error("participant retained session after host cancellation")
	}
}

// TestInvitationUnavailable tests availability failures.
func TestInvitationUnavailable(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	startManager(t, network, "bob", ManagerOptions{})
	hosted, err := host.Host(0)
	if err != nil {
		t.Fatal("unable to host session:", err)
	}

	outgoing, err := NewOutgoing("carol", hosted, host.options.Options)
	if err != nil {
		t.Fatal("unable to create negotiation:", err)
	}
	if outcome := outgoing.Run(); outcome.Status != negotiation.StatusError || !strings.Contains(outcome.Message, "support") {
		t.Error("unexpected outcome for unknown peer:", outcome)
	} else if outgoing.Phase() != PhaseCanceled {
		t.Error("unexpected phase:", outgoing.Phase())
	}

	network.Disconnect("bob")
	if outcome, _ := host.Invite("bob"); outcome.Status != negotiation.StatusError || !strings.Contains(outcome.Message, "available") {
		t.Error("unexpected outcome for disconnected peer:", outcome)
	}
}

// TestSharedSinkIsolation tests that a failed negotiation doesn't cancel
// later negotiations that report progress through the same sink.
func TestSharedSinkIsolation(t *testing.T) {
	network := transport.NewNetwork(nil)
	monitor := &progress.Monitor{}
	host := startManager(t, network, "alice", ManagerOptions{Options: Options{Sink: monitor}})
	startManager(t, network, "bob", ManagerOptions{})
	if _, err := host.Host(0); err != nil {
		t.Fatal("unable to host session:", err)
	}

	// Fail an invitation.
	if outcome, err := host.Invite("ghost"); err != nil {
		t.Fatal("unable to invite peer:", err)
	} else if outcome.Status != negotiation.StatusError {
		t.Error("unexpected outcome for unknown peer:", outcome)
	}
	if monitor.IsCanceled() {
		t.Error("failed negotiation canceled the shared sink")
	}

	// The next invitation is unaffected.
	if outcome, err := host.Invite("bob"); err != nil {
		t.Fatal("unable to invite peer:", err)
	} else if outcome.Status != negotiation.StatusOK {
		t.Error("unexpected outcome for second invitation:", outcome)
	}

	// Cancellation through the shared sink still reaches new negotiations.
	monitor.SetCanceled(true)
	if outcome, err := host.Invite("carol"); err != nil {
		t.Fatal("unable to invite peer:", err)
	} else if outcome.Status != negotiation.StatusCancel {
		t.Error("unexpected outcome after sink cancellation:", outcome)
	}
}

// registerNegotiation registers a negotiation with a manager that notifies
// the peer on cancellation. If terminate is set, the negotiation terminates
// once canceled.
func registerNegotiation(t *testing.T, manager *Manager, id, peer string, terminate bool) *negotiation.State {
	t.Helper()
	state, err := negotiation.NewState(id, negotiation.Hooks{
		NotifyPeer: negotiation.PeerNotifier(manager.via, peer, id, nil),
	}, negotiation.Options{Registry: manager.Registry()})
	if err != nil {
		t.Fatal("unable to create negotiation:", err)
	}
	if terminate {
		go func() {
			<-state.Canceled()
			state.Terminate(nil)
		}()
	}
	return state
}

// TestManagerShutdown tests that shutdown leaves the session, cancels and
// awaits in-flight negotiations, and that the peer applies the resulting
// notice.
func TestManagerShutdown(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	peer := startManager(t, network, "bob", ManagerOptions{})
	if _, err := host.Host(0); err != nil {
		t.Fatal("unable to host session:", err)
	}
	registerNegotiation(t, host, "sneg_shutdown", "bob", true)
	remote := registerNegotiation(t, peer, "sneg_shutdown", "alice", true)

	// Shut down the host.
	ctx, cancel := context.WithTimeout(context.Background(), managerTestTimeout)
	defer cancel()
	if err := host.Shutdown(ctx); err != nil {
		t.Fatal("unable to shut down:", err)
	}
	if host.Session() != nil {
		t.Error("session not left on shutdown")
	}
	if host.Registry().Len() != 0 {
		t.Error("negotiations still registered after shutdown")
	}

	// The peer's negotiation is canceled by the host's notice.
	select {
	case <-remote.Canceled():
	case <-time.After(managerTestTimeout):
		t.Fatal("peer negotiation not canceled")
	}
	if cause := remote.Cause(); !cause.Remote || cause.ErrorMessage != "shutting down" {
		t.Error("unexpected peer cancellation cause:", cause)
	}
	eventually(t, "peer registry to empty", func() bool {
		return peer.Registry().Len() == 0
	})
}

// TestManagerShutdownTimeout tests that shutdown reports negotiations that
// don't terminate in time.
func TestManagerShutdownTimeout(t *testing.T) {
	network := transport.NewNetwork(nil)
	manager := startManager(t, network, "alice", ManagerOptions{})
	stuck := registerNegotiation(t, manager, "sneg_stuck", "bob", false)
	defer stuck.Terminate(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := manager.Shutdown(ctx); err == nil {
		t.Error("shutdown succeeded with a negotiation still running")
	}
	if stuck.Check() == nil {
		t.Error("negotiation not canceled on shutdown")
	}
}

// TestVersionTimeout tests that an unanswered version request fails the
// negotiation without a peer notification.
func TestVersionTimeout(t *testing.T) {
	network := transport.NewNetwork(nil)
	configuration := testConfiguration()
	configuration.Negotiation.ResponseTimeout = 50 * time.Millisecond
	host := startManager(t, network, "alice", ManagerOptions{Options: Options{Configuration: configuration}})
	silent := network.Endpoint("bob", nil)
	notices := silent.Subscribe(transport.Match(negotiation.KindCancelNotice, ""))
	defer notices.Close()

	_, outcome := invite(t, host, "bob")
	if outcome.Status != negotiation.StatusError || !strings.Contains(outcome.Message, "timed out") {
		t.Error("unexpected outcome:", outcome)
	}
	if notices.Pending() != 0 {
		t.Error("peer notified of version timeout")
	}
}

// fakePeer answers version requests with a fixed compatibility and records
// invitations.
func fakePeer(t *testing.T, network *transport.Network, compatibility colabsync.Compatibility) <-chan *transport.Message {
	t.Helper()
	endpoint := network.Endpoint("bob", nil)
	requests := endpoint.Subscribe(func(message *transport.Message) bool {
		return message.Kind == KindVersionRequest || message.Kind == KindInvitation
	})
	invitations := make(chan *transport.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		defer requests.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-requests.Ready():
			}
			for message, ok := requests.Poll(); ok; message, ok = requests.Poll() {
				if message.Kind == KindInvitation {
					invitations <- message
					continue
				}
				endpoint.Send(&transport.Message{
					Kind:          KindVersionResponse,
					To:            message.From,
					NegotiationID: message.NegotiationID,
					Payload: VersionResponse{Info: colabsync.VersionInfo{
						Version:       "0.1.0",
						Compatibility: compatibility,
					}},
				})
			}
		}
	}()
	return invitations
}

// TestVersionConflict tests version conflict resolution.
func TestVersionConflict(t *testing.T) {
	// Strict mode fails immediately.
	network := transport.NewNetwork(nil)
	strict := testConfiguration()
	strict.Negotiation.StrictVersion = true
	host := startManager(t, network, "alice", ManagerOptions{Options: Options{
		Configuration: strict,
		Prompter:      &prompting.Scripted{Responses: []string{"yes"}},
	}})
	fakePeer(t, network, colabsync.CompatibilityTooOld)
	if _, outcome := invite(t, host, "bob"); outcome.Status != negotiation.StatusError || !strings.Contains(outcome.Message, "too new") {
		t.Error("unexpected strict outcome:", outcome)
	}

	// Declining the conflict cancels.
	network = transport.NewNetwork(nil)
	prompter := &prompting.Scripted{Responses: []string{"no"}}
	host = startManager(t, network, "alice", ManagerOptions{Options: Options{Prompter: prompter}})
	fakePeer(t, network, colabsync.CompatibilityTooNew)
	if _, outcome := invite(t, host, "bob"); outcome.Status != negotiation.StatusCancel {
		t.Error("unexpected outcome after declining:", outcome)
	}
	if len(prompter.Prompts) != 1 || !strings.Contains(prompter.Prompts[0], "too old") {
		t.Error("unexpected prompts:", prompter.Prompts)
	}

	// Accepting the conflict proceeds to the invitation.
	network = transport.NewNetwork(nil)
	host = startManager(t, network, "alice", ManagerOptions{Options: Options{
		Prompter: &prompting.Scripted{Responses: []string{"yes"}},
	}})
	invitations := fakePeer(t, network, colabsync.CompatibilityUnknown)
	hosted, err := host.Host(0)
	if err != nil {
		t.Fatal("unable to host session:", err)
	}
	outgoing, err := NewOutgoing("bob", hosted, host.options.Options)
	if err != nil {
		t.Fatal("unable to create negotiation:", err)
	}
	outcomes := make(chan negotiation.Outcome, 1)
	go func() {
		outcomes <- outgoing.Run()
	}()
	select {
	case invitation := <-invitations:
		if invitation.NegotiationID != outgoing.ID() {
			t.Error("invitation for unexpected negotiation")
		}
	case <-time.After(managerTestTimeout):
		t.Fatal("invitation not sent after accepting conflict")
	}
	outgoing.LocalCancel("", true)
	if outcome := <-outcomes; outcome.Status != negotiation.StatusCancel {
		t.Error("unexpected outcome:", outcome)
	}
}

// TestShareProjects tests sharing projects with a participant that joined
// through a session negotiation.
func TestShareProjects(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	root := t.TempDir()
	peerResults := &results{}
	peer := startManager(t, network, "bob", ManagerOptions{
		Mapper:   &project.DirectoryMapper{Root: root},
		OnResult: peerResults.record,
	})
	if _, outcome := invite(t, host, "bob"); outcome.Status != negotiation.StatusOK {
		t.Fatal("unable to invite participant:", outcome)
	}
	eventually(t, "participant session", func() bool {
		return peer.Session() != nil
	})

	// Share a project.
	store, err := resource.NewMemory(map[string]string{
		"main.go":      "package main",
		"docs/README":  strings.Repeat("documentation ", 200),
		"assets/empty": "",
	})
	if err != nil {
		t.Fatal("unable to create store:", err)
	}
	shares := []project.Share{{ProjectID: "proj_demo", Name: "demo", Store: store}}
	results, err := host.ShareProjects(context.Background(), []string{"bob"}, shares)
	if err != nil {
		t.Fatal("unable to share projects:", err)
	} else if result := results["bob"]; result.Outcome.Status != negotiation.StatusOK || result.Transferred == 0 {
		t.Error("unexpected result:", result)
	}

	// Verify the participant's project.
	eventually(t, "project mapping", func() bool {
		_, ok := peer.Session().Project("proj_demo")
		return ok
	})
	local, _ := peer.Session().Project("proj_demo")
	reader, err := local.Open("docs/README")
	if err != nil {
		t.Fatal("unable to open shared file:", err)
	}
	content, err := io.ReadAll(reader)
	reader.Close()
	if err != nil || string(content) != strings.Repeat("documentation ", 200) {
		t.Error("shared file content mismatch")
	}
	eventually(t, "participant resumption", func() bool {
		paused, _ := peer.Session().Paused()
		return !paused
	})
}

// TestShareProjectsRefused tests that participants outside the session
// refuse projects.
func TestShareProjectsRefused(t *testing.T) {
	network := transport.NewNetwork(nil)
	host := startManager(t, network, "alice", ManagerOptions{})
	startManager(t, network, "bob", ManagerOptions{Mapper: &project.DirectoryMapper{Root: t.TempDir()}})
	if _, err := host.Host(0); err != nil {
		t.Fatal("unable to host session:", err)
	}
	store, err := resource.NewMemory(map[string]string{"a.txt": "a"})
	if err != nil {
		t.Fatal("unable to create store:", err)
	}
	shares := []project.Share{{ProjectID: "proj_a", Name: "a", Store: store}}
	results, err := host.ShareProjects(context.Background(), []string{"bob"}, shares)
	if err == nil {
		t.Error("sharing with a non-participant succeeded")
	}
	if outcome := results["bob"].Outcome; outcome.Status != negotiation.StatusRemoteError || !strings.Contains(outcome.Message, "not in a session") {
		t.Error("unexpected outcome:", outcome)
	}
}
