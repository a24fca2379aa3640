package params

const (
	// ParamsKeyPauses stores the module pause switches.
	ParamsKeyPauses = "protocol/pauses"
)

// Module names accepted by Pauses.IsPaused.
const (
	ModuleIssue      = "issue"
	ModuleRedeem     = "redeem"
	ModuleReplace    = "replace"
	ModuleNomination = "nomination"
	ModuleVaults     = "vaults"
	ModuleOracle     = "oracle"
)
