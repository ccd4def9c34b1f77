package validator

import (
	"fmt"

	"github.com/certen/independant-validator/internal/queue"
)

// Event ids, ported verbatim from the reference implementation's launcher
// so that logs and dedup keys line up with the original numbering scheme.
const (
	eventIDLaunch         = 0
	eventIDRegister       = 5
	eventIDSync           = 10
	eventIDPoll           = 20
	eventIDObserveOverdue = 30
	eventIDTryAssign      = 40
	eventIDValidateSync   = 50
	eventIDVote           = 60
	eventIDCheckProposal  = 65
	eventIDPropose        = 70
	eventIDObserveVoting  = 80
	eventIDFinalize       = 90
	eventIDUnregister     = 100
	eventIDRestart        = 110
)

type launchEvent struct{}

func (launchEvent) EventID() uint64  { return eventIDLaunch }
func (launchEvent) UniqueKey() uint64 { return 0 }
func (launchEvent) Lane() queue.Lane  { return queue.LaneMain }
func (launchEvent) String() string    { return "Launch" }

type registerEvent struct{}

func (registerEvent) EventID() uint64  { return eventIDRegister }
func (registerEvent) UniqueKey() uint64 { return 0 }
func (registerEvent) Lane() queue.Lane  { return queue.LaneMain }
func (registerEvent) String() string    { return "Register" }

type syncEvent struct{}

func (syncEvent) EventID() uint64  { return eventIDSync }
func (syncEvent) UniqueKey() uint64 { return 0 }
func (syncEvent) Lane() queue.Lane  { return queue.LaneMain }
func (syncEvent) String() string    { return "Sync" }

type pollEvent struct{ blockNumber uint64 }

func (pollEvent) EventID() uint64   { return eventIDPoll }
func (pollEvent) UniqueKey() uint64 { return 0 }
func (pollEvent) Lane() queue.Lane  { return queue.LaneState }
func (e pollEvent) String() string  { return fmt.Sprintf("Poll{%d}", e.blockNumber) }

type observeOverdueEvent struct{}

func (observeOverdueEvent) EventID() uint64  { return eventIDObserveOverdue }
func (observeOverdueEvent) UniqueKey() uint64 { return 0 }
func (observeOverdueEvent) Lane() queue.Lane  { return queue.LaneMain }
func (observeOverdueEvent) String() string    { return "ObserveOverdue" }

type tryAssignEvent struct{}

func (tryAssignEvent) EventID() uint64  { return eventIDTryAssign }
func (tryAssignEvent) UniqueKey() uint64 { return 0 }
func (tryAssignEvent) Lane() queue.Lane  { return queue.LaneMain }
func (tryAssignEvent) String() string    { return "TryAssign" }

type validateSyncEvent struct{}

func (validateSyncEvent) EventID() uint64  { return eventIDValidateSync }
func (validateSyncEvent) UniqueKey() uint64 { return 0 }
func (validateSyncEvent) Lane() queue.Lane  { return queue.LaneState }
func (validateSyncEvent) String() string    { return "ValidateSync" }

type voteEvent struct{ blockID uint64 }

func (voteEvent) EventID() uint64    { return eventIDVote }
func (e voteEvent) UniqueKey() uint64 { return e.blockID }
func (voteEvent) Lane() queue.Lane    { return queue.LaneMain }
func (e voteEvent) String() string    { return fmt.Sprintf("Vote{%d}", e.blockID) }

type checkProposalEvent struct {
	blockID   uint64
	hasBlock  bool
}

func (checkProposalEvent) EventID() uint64 { return eventIDCheckProposal }
func (e checkProposalEvent) UniqueKey() uint64 {
	if e.hasBlock {
		return e.blockID
	}
	return 0
}
func (checkProposalEvent) Lane() queue.Lane { return queue.LaneMain }
func (e checkProposalEvent) String() string {
	if e.hasBlock {
		return fmt.Sprintf("CheckProposal{%d}", e.blockID)
	}
	return "CheckProposal{None}"
}

type proposeEvent struct {
	blockID uint64
	from    uint64
}

func (proposeEvent) EventID() uint64    { return eventIDPropose }
func (e proposeEvent) UniqueKey() uint64 { return e.blockID }
func (proposeEvent) Lane() queue.Lane    { return queue.LaneMain }
func (e proposeEvent) String() string    { return fmt.Sprintf("Propose{%d,%d}", e.blockID, e.from) }

type observeVotingEvent struct{ blockID uint64 }

func (observeVotingEvent) EventID() uint64    { return eventIDObserveVoting }
func (e observeVotingEvent) UniqueKey() uint64 { return e.blockID }
func (observeVotingEvent) Lane() queue.Lane    { return queue.LaneMain }
func (e observeVotingEvent) String() string    { return fmt.Sprintf("ObserveVoting{%d}", e.blockID) }

type finalizeEvent struct{ blockID uint64 }

func (finalizeEvent) EventID() uint64    { return eventIDFinalize }
func (e finalizeEvent) UniqueKey() uint64 { return e.blockID }
func (finalizeEvent) Lane() queue.Lane    { return queue.LaneMain }
func (e finalizeEvent) String() string    { return fmt.Sprintf("Finalize{%d}", e.blockID) }

type unregisterEvent struct{}

func (unregisterEvent) EventID() uint64  { return eventIDUnregister }
func (unregisterEvent) UniqueKey() uint64 { return 0 }
func (unregisterEvent) Lane() queue.Lane  { return queue.LaneMain }
func (unregisterEvent) String() string    { return "Unregister" }

// restartEvent is the supplemented event (no external surface) matching the
// reference implementation's orphaned RestartHandler: a planned shutdown
// that does not run the unassign/unregister chain calls Unregister does.
type restartEvent struct{}

func (restartEvent) EventID() uint64  { return eventIDRestart }
func (restartEvent) UniqueKey() uint64 { return 0 }
func (restartEvent) Lane() queue.Lane  { return queue.LaneMain }
func (restartEvent) String() string    { return "Restart" }
