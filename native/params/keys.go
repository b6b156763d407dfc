package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeyRounds stores the round ledger configuration.
	ParamsKeyRounds = "rounds/config"
)
