package devhub

// Contract methods the cache reacts to.
const (
	MethodSetBlockHeightCallback        = "set_block_height_callback"
	MethodEditProposal                  = "edit_proposal"
	MethodEditProposalTimeline          = "edit_proposal_timeline"
	MethodEditProposalVersionedTimeline = "edit_proposal_versioned_timeline"
	MethodEditProposalLinkedRFP         = "edit_proposal_linked_rfp"
	MethodEditProposalInternal          = "edit_proposal_internal"
	MethodSetRFPBlockHeightCallback     = "set_rfp_block_height_callback"
	MethodEditRFP                       = "edit_rfp"
	MethodEditRFPInternal               = "edit_rfp_internal"
	MethodEditRFPTimeline               = "edit_rfp_timeline"
	MethodCancelRFP                     = "cancel_rfp"
)

// SetBlockHeightCallbackArgs carries the freshly created proposal.
type SetBlockHeightCallbackArgs struct {
	Proposal *Proposal `json:"proposal"`
}

// SetRFPBlockHeightCallbackArgs carries the freshly created RFP.
type SetRFPBlockHeightCallbackArgs struct {
	RFP *RFP `json:"rfp"`
}

// EditArgs is the part of every edit call the cache needs; the rest is
// re-read from the contract.
type EditArgs struct {
	ID *U64 `json:"id"`
}
